package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pipeboard/automation/pkg/engine"
)

// handleListRuns handles listing a tenant's runs, optionally filtered
// by workflow via ?workflow_id=
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.engine.ListRuns(tenantID(r), r.URL.Query().Get("workflow_id"))
	if err != nil {
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []engine.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun handles retrieving a run with its step history
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.GetRun(mux.Vars(r)["id"])
	if err != nil || run.TenantID != tenantID(r) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleCancelRun handles POST /runs/{id}/cancel
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.GetRun(mux.Vars(r)["id"])
	if err != nil || run.TenantID != tenantID(r) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	if err := s.engine.Cancel(run.ID); err != nil {
		if errors.Is(err, engine.ErrRunTerminal) {
			http.Error(w, "Run already finished", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	run, err = s.engine.GetRun(run.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
