package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pipeboard/automation/pkg/graph"
)

// RegistryService implements the Registry interface over a WorkflowStore
type RegistryService struct {
	store     WorkflowStore
	templates *TemplateCatalog
	now       func() time.Time
}

// NewRegistry creates a new workflow registry
func NewRegistry(store WorkflowStore) *RegistryService {
	return &RegistryService{
		store:     store,
		templates: DefaultTemplates(),
		now:       time.Now,
	}
}

// Create makes a new draft workflow, empty or from a named template
func (r *RegistryService) Create(tenantID, name, templateName string) (Workflow, error) {
	var g graph.Graph
	if templateName != "" {
		tpl, err := r.templates.Get(templateName)
		if err != nil {
			return Workflow{}, err
		}
		g = tpl.Graph
	}

	now := r.now().UTC()
	wf := Workflow{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Name:         name,
		Status:       StatusDraft,
		Graph:        g,
		GraphVersion: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := r.store.SaveWorkflow(wf); err != nil {
		return Workflow{}, fmt.Errorf("failed to save workflow: %w", err)
	}
	return wf, nil
}

// Templates returns the names of the available workflow templates
func (r *RegistryService) Templates() []string {
	return r.templates.Names()
}

// Get retrieves a workflow
func (r *RegistryService) Get(tenantID, id string) (Workflow, error) {
	return r.store.GetWorkflow(tenantID, id)
}

// List returns all workflows for a tenant
func (r *RegistryService) List(tenantID string) ([]Workflow, error) {
	return r.store.ListWorkflows(tenantID)
}

// Delete removes a workflow
func (r *RegistryService) Delete(tenantID, id string) error {
	return r.store.DeleteWorkflow(tenantID, id)
}

// SaveGraph validates and saves a new graph version
func (r *RegistryService) SaveGraph(tenantID, id string, g graph.Graph, expectedUpdatedAt time.Time) (Workflow, []graph.ValidationError, error) {
	if _, errs := graph.Validate(g); len(errs) > 0 {
		return Workflow{}, errs, ErrInvalidGraph
	}

	wf, err := r.store.GetWorkflow(tenantID, id)
	if err != nil {
		return Workflow{}, nil, err
	}

	wf.Graph = g
	wf.GraphVersion++
	wf.UpdatedAt = r.now().UTC()

	// The version record goes in first so a run started between the two
	// writes can always resolve the version it pinned.
	if err := r.store.SaveGraphVersion(tenantID, id, wf.GraphVersion, g); err != nil {
		return Workflow{}, nil, fmt.Errorf("failed to save graph version: %w", err)
	}
	if err := r.store.UpdateWorkflow(wf, expectedUpdatedAt); err != nil {
		return Workflow{}, nil, err
	}

	return wf, nil, nil
}

// SetStatus applies a user-driven status transition
func (r *RegistryService) SetStatus(tenantID, id, status string) (Workflow, error) {
	switch status {
	case StatusDraft, StatusActive, StatusPaused:
	default:
		return Workflow{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	wf, err := r.store.GetWorkflow(tenantID, id)
	if err != nil {
		return Workflow{}, err
	}

	// A workflow with no saved graph cannot run
	if status == StatusActive {
		if _, errs := graph.Validate(wf.Graph); len(errs) > 0 {
			return Workflow{}, fmt.Errorf("%w: cannot activate", ErrInvalidGraph)
		}
	}

	prev := wf.UpdatedAt
	wf.Status = status
	wf.UpdatedAt = r.now().UTC()
	if err := r.store.UpdateWorkflow(wf, prev); err != nil {
		return Workflow{}, err
	}
	return wf, nil
}

// ActiveGraph returns the workflow and its validated current graph
func (r *RegistryService) ActiveGraph(tenantID, id string) (Workflow, *graph.ValidGraph, error) {
	wf, err := r.store.GetWorkflow(tenantID, id)
	if err != nil {
		return Workflow{}, nil, err
	}
	if wf.Status != StatusActive {
		return Workflow{}, nil, ErrNotActive
	}

	vg, errs := graph.Validate(wf.Graph)
	if len(errs) > 0 {
		return Workflow{}, nil, fmt.Errorf("%w: stored graph failed validation", ErrInvalidGraph)
	}
	return wf, vg, nil
}

// PinnedGraph returns the validated graph at a specific version
func (r *RegistryService) PinnedGraph(tenantID, id string, version int) (*graph.ValidGraph, error) {
	g, err := r.store.GetGraphVersion(tenantID, id, version)
	if err != nil {
		return nil, err
	}
	vg, errs := graph.Validate(g)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: stored graph version %d failed validation", ErrInvalidGraph, version)
	}
	return vg, nil
}

// RecordExecution notes that a run started for the workflow
func (r *RegistryService) RecordExecution(tenantID, id string, at time.Time) error {
	return r.store.RecordExecution(tenantID, id, at)
}
