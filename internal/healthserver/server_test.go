package healthserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthCheckEndpoint_MethodNotAllowed(t *testing.T) {
	server := NewServer(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	w := httptest.NewRecorder()

	server.healthCheckHandler(w, req)

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHealthCheckEndpoint_HealthyWithQueueDepths(t *testing.T) {
	server := NewServer(
		func(ctx context.Context) error { return nil },
		[]QueueProbe{
			{Name: "taskgraph", Depth: func() int { return 3 }},
			{Name: "dispatcher", Depth: func() int { return 0 }},
		},
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	server.healthCheckHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "healthy", resp.Status)
	require.Equal(t, "connected", resp.Redis)
	require.Equal(t, 3, resp.Queues["taskgraph"])
	require.Equal(t, 0, resp.Queues["dispatcher"])
}

func TestHealthCheckEndpoint_UnhealthyWhenRedisUnreachable(t *testing.T) {
	server := NewServer(func(ctx context.Context) error { return errors.New("dial tcp: connection refused") }, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	server.healthCheckHandler(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "unhealthy", resp.Status)
	require.Equal(t, "disconnected", resp.Redis)
	require.NotEmpty(t, resp.Error)
}

func TestSignalsEndpoint_ListsCurrentSignals(t *testing.T) {
	server := NewServer(nil, nil)
	server.SetSignalLister(func(prefix string) []SignalEntry {
		require.Equal(t, "task:", prefix)
		return []SignalEntry{{Key: "task:g1:t1", Value: `{"status":"dispatched"}`, PublisherID: "viewport"}}
	})

	req := httptest.NewRequest(http.MethodGet, "/signals?prefix=task:", nil)
	w := httptest.NewRecorder()

	server.signalsHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var entries []SignalEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	require.Equal(t, "task:g1:t1", entries[0].Key)
}

func TestSignalsEndpoint_NotConfigured(t *testing.T) {
	server := NewServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/signals", nil)
	w := httptest.NewRecorder()

	server.signalsHandler(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheckEndpoint_NoPingConfiguredReportsHealthy(t *testing.T) {
	server := NewServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	server.healthCheckHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
