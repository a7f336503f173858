// Package healthserver provides the orchestrator's HTTP health endpoint:
// Redis connectivity plus each mailbox actor's current queue depth, so an
// operator (or a Kubernetes liveness probe) can tell "running" apart from
// "running but backed up." Generalized from internal/orchestrator/health.go's
// single Redis-ping /healthz into a multi-probe version; the per-agent
// subprocess health loop in internal/pup/health.go does not apply here since
// this server watches orchestrator-side actors, not a runtime subprocess.
package healthserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PingFunc reports backing-store connectivity, typically a
// *redis.Client.Ping the caller wires in.
type PingFunc func(ctx context.Context) error

// QueueProbe names one actor's mailbox and reports its current depth.
type QueueProbe struct {
	Name  string
	Depth func() int
}

// SignalLister returns the blackboard's current signals under a prefix,
// typically blackboard.Board.ListSignals partially applied with a
// context. Nil disables the /signals endpoint.
type SignalLister func(prefix string) []SignalEntry

// SignalEntry is one blackboard signal as reported by /signals.
type SignalEntry struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	PublisherID string `json:"publisherId,omitempty"`
}

// Server is the HTTP health check server for the orchestrator process.
type Server struct {
	ping    PingFunc
	probes  []QueueProbe
	signals SignalLister
	server  *http.Server
}

// NewServer creates a health check server. probes is the set of actor
// mailboxes to report queue depth for; order is preserved in the response.
func NewServer(ping PingFunc, probes []QueueProbe) *Server {
	return &Server{ping: ping, probes: probes}
}

// SetSignalLister enables GET /signals, serving the blackboard's current
// signal state for operator inspection.
func (s *Server) SetSignalLister(lister SignalLister) {
	s.signals = lister
}

// Start starts the HTTP health check server on addr (e.g. ":8080").
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthCheckHandler)
	mux.HandleFunc("/signals", s.signalsHandler)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("health server error: %v\n", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the health check server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// QueueDepths is the per-actor mailbox backlog reported in HealthResponse.
type QueueDepths map[string]int

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string      `json:"status"`
	Redis  string      `json:"redis,omitempty"`
	Error  string      `json:"error,omitempty"`
	Queues QueueDepths `json:"queues,omitempty"`
}

// healthCheckHandler handles GET /healthz requests. Returns 200 OK if Redis
// is accessible, 503 Service Unavailable otherwise. Queue depths are
// reported regardless of Redis status since they come from in-process
// actors, not Redis.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Queues: s.queueDepths(),
	}

	if s.ping == nil {
		response.Redis = "connected"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
		return
	}

	if err := s.ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Redis = "disconnected"
		response.Error = err.Error()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(response)
		return
	}

	response.Redis = "connected"

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// signalsHandler handles GET /signals[?prefix=...]: the blackboard's
// current signal state, for operator inspection of live run state.
func (s *Server) signalsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.signals == nil {
		http.Error(w, "signal listing not configured", http.StatusNotFound)
		return
	}

	entries := s.signals(r.URL.Query().Get("prefix"))
	if entries == nil {
		entries = []SignalEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(entries)
}

func (s *Server) queueDepths() QueueDepths {
	if len(s.probes) == 0 {
		return nil
	}
	depths := make(QueueDepths, len(s.probes))
	for _, p := range s.probes {
		depths[p.Name] = p.Depth()
	}
	return depths
}
