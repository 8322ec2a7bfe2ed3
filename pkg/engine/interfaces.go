// Package engine executes workflow runs: it walks a validated graph
// from its trigger, evaluates conditions, invokes step executors,
// suspends on delay nodes and records step-level history.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/pipeboard/automation/pkg/graph"
)

// Run statuses
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Step statuses
const (
	StepPending   = "pending"
	StepRunning   = "running"
	StepSucceeded = "succeeded"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// Errors returned by the engine and run stores
var (
	ErrRunNotFound      = errors.New("run not found")
	ErrRunTerminal      = errors.New("run already reached a terminal status")
	ErrNotSuspended     = errors.New("run is not suspended at a delay")
	ErrContinuationGone = errors.New("continuation not found")
)

// Run is one execution of a workflow, spawned by a trigger firing
type Run struct {
	// ID of the run
	ID string `json:"id"`

	// TenantID owning the run
	TenantID string `json:"tenant_id"`

	// WorkflowID is the workflow being executed
	WorkflowID string `json:"workflow_id"`

	// GraphVersion is the graph version the run is pinned to
	GraphVersion int `json:"graph_version"`

	// TriggerPayload is the context the trigger fired with
	TriggerPayload map[string]interface{} `json:"trigger_payload,omitempty"`

	// Status is "pending", "running", "completed", "failed" or "cancelled"
	Status string `json:"status"`

	// Suspended is set while the run is parked at a delay node. It is a
	// sub-state of running, never terminal.
	Suspended bool `json:"suspended,omitempty"`

	// SuspendedNode is the delay node the run is parked at
	SuspendedNode string `json:"suspended_node,omitempty"`

	// Error holds the failing step's error for failed runs
	Error string `json:"error,omitempty"`

	// StartedAt is when the run started
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal status
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Steps is the ordered step history
	Steps []StepRecord `json:"steps,omitempty"`
}

// Terminal reports whether the run reached a final status
func (r Run) Terminal() bool {
	switch r.Status {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// StepRecord is the outcome of one node within a run
type StepRecord struct {
	// NodeID is the graph node the step executed
	NodeID string `json:"node_id"`

	// Status of the step
	Status string `json:"status"`

	// Input is a snapshot of the run context when the step started
	Input map[string]interface{} `json:"input,omitempty"`

	// Output is the context patch the step produced
	Output map[string]interface{} `json:"output,omitempty"`

	// Error holds the executor error for failed steps
	Error string `json:"error,omitempty"`

	// StartedAt is when the step started
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the step finished
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Continuation is a durable "resume run R at node N with context C at
// time T" record for a run suspended at a delay node. It survives
// process restarts; delays may span days.
type Continuation struct {
	// RunID identifies the suspended run; one continuation per run
	RunID string `json:"run_id"`

	// TenantID and WorkflowID locate the pinned graph
	TenantID   string `json:"tenant_id"`
	WorkflowID string `json:"workflow_id"`

	// GraphVersion is the version the run is pinned to
	GraphVersion int `json:"graph_version"`

	// NodeID is the delay node the run is parked at
	NodeID string `json:"node_id"`

	// Context is the run context to resume with
	Context map[string]interface{} `json:"context"`

	// SuspendedAt is when the run parked
	SuspendedAt time.Time `json:"suspended_at"`

	// ResumeAt is the absolute time the run becomes due
	ResumeAt time.Time `json:"resume_at"`
}

// RunStore persists runs and their step history. Step records are
// append-only; Finalize is the only status mutation into a terminal
// state and must be an idempotent no-op when the run is already
// terminal. Writes for one run id are serialized by the engine (the
// walk is sequential), different runs may write concurrently.
type RunStore interface {
	// SaveRun inserts or replaces a non-terminal run's state. Stores
	// must refuse to overwrite a run that is already terminal.
	SaveRun(run Run) error

	// GetRun retrieves a run with its steps
	GetRun(runID string) (Run, error)

	// ListRuns returns runs for a tenant, optionally filtered by workflow
	ListRuns(tenantID, workflowID string) ([]Run, error)

	// AppendStep appends one finished step record to a run's history
	AppendStep(runID string, step StepRecord) error

	// Finalize sets the terminal status. It is a no-op if the run is
	// already terminal.
	Finalize(runID string, status string, errMsg string, at time.Time) error
}

// ContinuationStore persists delay-node continuations durably
type ContinuationStore interface {
	// SaveContinuation stores the continuation for a suspended run
	SaveContinuation(c Continuation) error

	// GetContinuation retrieves a run's continuation
	GetContinuation(runID string) (Continuation, error)

	// DueContinuations returns every continuation with ResumeAt <= now
	DueContinuations(now time.Time) ([]Continuation, error)

	// DeleteContinuation removes a continuation
	DeleteContinuation(runID string) error
}

// GraphProvider resolves the pinned graph version a run executes against
type GraphProvider interface {
	PinnedGraph(tenantID, workflowID string, version int) (*graph.ValidGraph, error)
}

// Clock abstracts time so delay semantics are testable on simulated time
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock is the wall clock
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// StartRequest asks the engine to execute one run
type StartRequest struct {
	TenantID     string
	WorkflowID   string
	GraphVersion int
	Graph        *graph.ValidGraph
	Payload      map[string]interface{}
}

// Engine executes runs
type Engine interface {
	// Start creates a run and walks it until it completes, fails or
	// suspends at a delay. It returns the run id.
	Start(ctx context.Context, req StartRequest) (string, error)

	// ResumeDue resumes every continuation due at the current clock
	// time and returns how many it processed.
	ResumeDue(ctx context.Context) (int, error)

	// Cancel stops a run. Running→cancelled applies only while the run
	// is suspended at a delay; mid-executor cancellation is best-effort.
	Cancel(runID string) error

	// GetRun retrieves a run with its step history
	GetRun(runID string) (Run, error)

	// ListRuns returns runs for a tenant, optionally filtered by workflow
	ListRuns(tenantID, workflowID string) ([]Run, error)

	// Subscribe returns a channel of run events for live log views
	Subscribe(runID string) (<-chan Event, func())
}
