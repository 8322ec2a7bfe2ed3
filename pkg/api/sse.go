package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/r3labs/sse/v2"

	"github.com/pipeboard/automation/pkg/engine"
)

// SSEStreamer exposes run events as server-sent event streams, one
// stream per run. The execution-log view in the builder uses this when
// websockets are unavailable.
type SSEStreamer struct {
	server  *sse.Server
	engine  engine.Engine
	mu      sync.Mutex
	bridged map[string]bool
}

// NewSSEStreamer creates a new SSE streamer
func NewSSEStreamer(eng engine.Engine) *SSEStreamer {
	server := sse.New()
	server.AutoReplay = false
	return &SSEStreamer{
		server:  server,
		engine:  eng,
		bridged: make(map[string]bool),
	}
}

// HandleStream handles GET /runs/{id}/stream
func (s *SSEStreamer) HandleStream(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	run, err := s.engine.GetRun(runID)
	if err != nil || run.TenantID != tenantID(r) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	s.ensureBridge(runID)

	q := r.URL.Query()
	q.Set("stream", runID)
	r.URL.RawQuery = q.Encode()
	s.server.ServeHTTP(w, r)
}

// ensureBridge starts at most one goroutine per run copying engine
// events into the run's SSE stream
func (s *SSEStreamer) ensureBridge(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bridged[runID] {
		return
	}
	s.bridged[runID] = true
	s.server.CreateStream(runID)

	events, unsubscribe := s.engine.Subscribe(runID)
	go func() {
		defer unsubscribe()
		defer func() {
			s.mu.Lock()
			delete(s.bridged, runID)
			s.mu.Unlock()
		}()
		for evt := range events {
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			s.server.Publish(runID, &sse.Event{
				Event: []byte(evt.Type),
				Data:  data,
			})
			if evt.Type == engine.EventRunFinished {
				return
			}
		}
	}()
}
