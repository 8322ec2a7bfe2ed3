package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/logging"
	"github.com/pipeboard/automation/pkg/workflow"
)

// handleListWorkflows handles listing a tenant's workflows
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.registry.List(tenantID(r))
	if err != nil {
		http.Error(w, "Failed to list workflows", http.StatusInternalServerError)
		return
	}
	if workflows == nil {
		workflows = []workflow.Workflow{}
	}
	writeJSON(w, http.StatusOK, workflows)
}

// handleCreateWorkflow handles workflow creation
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Template string `json:"template,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Workflow name is required", http.StatusBadRequest)
		return
	}

	wf, err := s.registry.Create(tenantID(r), req.Name, req.Template)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, wf)
}

// handleGetWorkflow handles retrieving a workflow
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.registry.Get(tenantID(r), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Workflow not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// handleDeleteWorkflow handles deleting a workflow
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	id := mux.Vars(r)["id"]

	if err := s.registry.Delete(tenant, id); err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			http.Error(w, "Workflow not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.scheduler.Unregister(tenant, id); err != nil {
		s.logger.Warn("Failed to unregister schedule",
			logging.Field{Key: "workflow_id", Value: id},
			logging.Field{Key: "error", Value: err.Error()})
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSaveGraph handles replacing a workflow's graph. The builder
// sends the whole graph plus the updated_at it last read; a stale token
// is a 409 and validation problems come back as a structured list.
func (s *Server) handleSaveGraph(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkflowData graph.Graph `json:"workflow_data"`
		UpdatedAt    time.Time   `json:"updated_at"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	wf, validationErrs, err := s.registry.SaveGraph(tenantID(r), mux.Vars(r)["id"], req.WorkflowData, req.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrNotFound):
			http.Error(w, "Workflow not found", http.StatusNotFound)
		case errors.Is(err, workflow.ErrConflict):
			http.Error(w, "Workflow was modified concurrently", http.StatusConflict)
		case errors.Is(err, workflow.ErrInvalidGraph):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  "graph failed validation",
				"errors": validationErrs,
			})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// handleSetStatus handles activate/pause transitions. Activating a
// workflow with a time_based trigger registers its cron schedule;
// leaving active unregisters it.
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	id := mux.Vars(r)["id"]

	var req struct {
		Status string `json:"status"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	wf, err := s.registry.SetStatus(tenant, id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrNotFound):
			http.Error(w, "Workflow not found", http.StatusNotFound)
		case errors.Is(err, workflow.ErrInvalidStatus):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, workflow.ErrInvalidGraph):
			http.Error(w, "Workflow graph is invalid; fix it before activating", http.StatusUnprocessableEntity)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if err := s.syncSchedule(wf); err != nil {
		s.logger.Warn("Failed to sync schedule",
			logging.Field{Key: "workflow_id", Value: id},
			logging.Field{Key: "error", Value: err.Error()})
	}

	writeJSON(w, http.StatusOK, wf)
}

// syncSchedule keeps the cron scheduler in line with a workflow's
// status and trigger type
func (s *Server) syncSchedule(wf workflow.Workflow) error {
	valid, errs := graph.Validate(wf.Graph)
	if len(errs) > 0 {
		return s.scheduler.Unregister(wf.TenantID, wf.ID)
	}
	cfg, ok := valid.Config(valid.Trigger.ID).(*graph.TriggerConfig)
	if !ok || cfg.TriggerType != graph.TriggerTimeBased {
		return nil
	}
	if wf.Status == workflow.StatusActive {
		return s.scheduler.Register(wf.TenantID, wf.ID, cfg.Schedule)
	}
	return s.scheduler.Unregister(wf.TenantID, wf.ID)
}

// handleListTemplates returns the names of the built-in templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": s.registry.Templates(),
	})
}
