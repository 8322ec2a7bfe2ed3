// Package storage provides the persistence backends for workflows,
// runs, delay continuations and trigger schedules.
package storage

import (
	"github.com/pipeboard/automation/pkg/engine"
	"github.com/pipeboard/automation/pkg/trigger"
	"github.com/pipeboard/automation/pkg/workflow"
)

// StorageProvider defines the interface for persistence backends
type StorageProvider interface {
	// Initialize sets up the storage backend
	Initialize() error

	// Close cleans up resources
	Close() error

	// GetWorkflowStore returns a store for workflow definitions
	GetWorkflowStore() workflow.WorkflowStore

	// GetRunStore returns a store for run history
	GetRunStore() engine.RunStore

	// GetContinuationStore returns a store for delay continuations
	GetContinuationStore() engine.ContinuationStore

	// GetScheduleStore returns a store for time_based trigger schedules
	GetScheduleStore() trigger.ScheduleStore
}
