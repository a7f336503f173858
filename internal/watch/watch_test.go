package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/internal/filter"
	"github.com/dyluth/warren/pkg/fleet"
)

func TestStreamActivity_JSONLFiltersAndExits(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	bus := fleet.NewBus(rdb, "inst1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- StreamActivity(ctx, bus, OutputFormatJSONL, &filter.Criteria{}, true, &buf)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), fleet.Event{Type: "TaskDispatched", TaskID: "t1"}))
	require.NoError(t, bus.Publish(context.Background(), fleet.Event{Type: "TaskGraphCompleted", GraphID: "g1"}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("StreamActivity did not exit on terminal event")
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var evt fleet.Event
	require.NoError(t, json.Unmarshal(lines[0], &evt))
	require.Equal(t, "TaskDispatched", evt.Type)
}
