// Package workflow defines the workflow model and the registry service
// that owns graph saves, versioning and status transitions.
package workflow

import (
	"errors"
	"time"

	"github.com/pipeboard/automation/pkg/graph"
)

// Workflow statuses. Transitions between them are user/API driven; the
// engine only reads the status to decide whether new runs may start.
const (
	StatusDraft  = "draft"
	StatusActive = "active"
	StatusPaused = "paused"
)

// Errors returned by the workflow registry and stores
var (
	ErrNotFound      = errors.New("workflow not found")
	ErrConflict      = errors.New("workflow was modified concurrently")
	ErrInvalidStatus = errors.New("invalid workflow status")
	ErrNotActive     = errors.New("workflow is not active")
	ErrInvalidGraph  = errors.New("graph failed validation")
)

// Workflow is one automation: a named, versioned graph owned by a tenant
type Workflow struct {
	// ID of the workflow
	ID string `json:"id"`

	// TenantID is the workspace that owns the workflow
	TenantID string `json:"tenant_id"`

	// Name of the workflow
	Name string `json:"name"`

	// Description of the workflow
	Description string `json:"description,omitempty"`

	// Status is "draft", "active" or "paused"
	Status string `json:"status"`

	// Graph is the current graph (latest version)
	Graph graph.Graph `json:"workflow_data"`

	// GraphVersion is bumped on every graph save
	GraphVersion int `json:"graph_version"`

	// ExecutionCount is the number of runs started for this workflow
	ExecutionCount int64 `json:"execution_count"`

	// LastExecutedAt is when a run last started, if ever
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`

	// CreatedAt is when the workflow was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the workflow record last changed
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowStore manages workflow persistence. Graph versions are
// append-only; the current graph lives on the workflow record and every
// saved version stays retrievable so in-flight runs can pin theirs.
type WorkflowStore interface {
	// SaveWorkflow persists a new workflow
	SaveWorkflow(wf Workflow) error

	// UpdateWorkflow replaces a workflow record. It fails with
	// ErrConflict when the stored UpdatedAt differs from expected.
	UpdateWorkflow(wf Workflow, expectedUpdatedAt time.Time) error

	// GetWorkflow retrieves a workflow
	GetWorkflow(tenantID, id string) (Workflow, error)

	// ListWorkflows returns all workflows for a tenant
	ListWorkflows(tenantID string) ([]Workflow, error)

	// DeleteWorkflow removes a workflow and its graph versions
	DeleteWorkflow(tenantID, id string) error

	// SaveGraphVersion persists one immutable graph version
	SaveGraphVersion(tenantID, workflowID string, version int, g graph.Graph) error

	// GetGraphVersion retrieves a specific graph version
	GetGraphVersion(tenantID, workflowID string, version int) (graph.Graph, error)

	// RecordExecution bumps the execution counter and last-executed time
	RecordExecution(tenantID, id string, at time.Time) error
}

// Registry is the service surface over workflows
type Registry interface {
	// Create makes a new draft workflow, empty or from a named template
	Create(tenantID, name, templateName string) (Workflow, error)

	// Templates returns the names of the available workflow templates
	Templates() []string

	// Get retrieves a workflow
	Get(tenantID, id string) (Workflow, error)

	// List returns all workflows for a tenant
	List(tenantID string) ([]Workflow, error)

	// Delete removes a workflow
	Delete(tenantID, id string) error

	// SaveGraph validates and saves a new graph version. The graph is
	// replaced wholesale; expectedUpdatedAt carries the optimistic
	// concurrency token. Validation failures return ErrInvalidGraph with
	// the individual problems.
	SaveGraph(tenantID, id string, g graph.Graph, expectedUpdatedAt time.Time) (Workflow, []graph.ValidationError, error)

	// SetStatus applies a user-driven status transition
	SetStatus(tenantID, id, status string) (Workflow, error)

	// ActiveGraph returns the workflow and its validated current graph,
	// failing with ErrNotActive unless the workflow status is active
	ActiveGraph(tenantID, id string) (Workflow, *graph.ValidGraph, error)

	// PinnedGraph returns the validated graph at a specific version,
	// used to resume runs against the version they started with
	PinnedGraph(tenantID, id string, version int) (*graph.ValidGraph, error)

	// RecordExecution notes that a run started for the workflow
	RecordExecution(tenantID, id string, at time.Time) error
}
