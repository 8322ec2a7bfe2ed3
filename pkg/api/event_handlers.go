package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pipeboard/automation/pkg/trigger"
)

// handleIngestEvent handles POST /events: a CRM or messaging
// collaborator delivers a domain event and every matching active
// workflow starts a run.
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev trigger.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	ev.TenantID = tenantID(r)
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	runIDs, err := s.triggers.OnEvent(r.Context(), ev)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if runIDs == nil {
		runIDs = []string{}
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_ids": runIDs,
	})
}

// handleInboundWebhook handles any-method calls under /hooks/. The
// remainder of the URL path is matched against webhook trigger
// configuration; the tenant comes from the scoping header.
func (s *Server) handleInboundWebhook(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		http.Error(w, "Missing "+TenantHeader+" header", http.StatusBadRequest)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/hooks")
	if path == "" || path == "/" {
		http.Error(w, "Missing webhook path", http.StatusNotFound)
		return
	}

	var body map[string]interface{}
	if r.Body != nil {
		// A non-JSON or empty body is fine; the event just carries none
		json.NewDecoder(r.Body).Decode(&body)
	}

	ev := trigger.Event{
		Type:       trigger.EventWebhook,
		TenantID:   tenant,
		OccurredAt: time.Now().UTC(),
		Path:       path,
		Method:     r.Method,
		Body:       body,
	}

	runIDs, err := s.triggers.OnEvent(r.Context(), ev)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runIDs == nil {
		runIDs = []string{}
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_ids": runIDs,
	})
}
