package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/pipeboard/automation/pkg/engine"
	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/trigger"
	"github.com/pipeboard/automation/pkg/workflow"
)

// MemoryProvider implements the StorageProvider interface using
// in-memory storage. It backs tests and single-process deployments.
type MemoryProvider struct {
	workflowStore     *MemoryWorkflowStore
	runStore          *MemoryRunStore
	continuationStore *MemoryContinuationStore
	scheduleStore     *MemoryScheduleStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		workflowStore:     NewMemoryWorkflowStore(),
		runStore:          NewMemoryRunStore(),
		continuationStore: NewMemoryContinuationStore(),
		scheduleStore:     NewMemoryScheduleStore(),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize() error { return nil }

// Close cleans up resources
func (p *MemoryProvider) Close() error { return nil }

// GetWorkflowStore returns a store for workflow definitions
func (p *MemoryProvider) GetWorkflowStore() workflow.WorkflowStore { return p.workflowStore }

// GetRunStore returns a store for run history
func (p *MemoryProvider) GetRunStore() engine.RunStore { return p.runStore }

// GetContinuationStore returns a store for delay continuations
func (p *MemoryProvider) GetContinuationStore() engine.ContinuationStore {
	return p.continuationStore
}

// GetScheduleStore returns a store for time_based trigger schedules
func (p *MemoryProvider) GetScheduleStore() trigger.ScheduleStore { return p.scheduleStore }

// MemoryWorkflowStore implements workflow.WorkflowStore in memory
type MemoryWorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]map[string]workflow.Workflow  // tenantID -> id -> workflow
	versions  map[string]map[string]map[int]graph.Graph // tenantID -> id -> version -> graph
}

// NewMemoryWorkflowStore creates an in-memory workflow store
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{
		workflows: make(map[string]map[string]workflow.Workflow),
		versions:  make(map[string]map[string]map[int]graph.Graph),
	}
}

// SaveWorkflow persists a new workflow
func (s *MemoryWorkflowStore) SaveWorkflow(wf workflow.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workflows[wf.TenantID] == nil {
		s.workflows[wf.TenantID] = make(map[string]workflow.Workflow)
	}
	s.workflows[wf.TenantID][wf.ID] = wf
	return nil
}

// UpdateWorkflow replaces a workflow record under optimistic concurrency
func (s *MemoryWorkflowStore) UpdateWorkflow(wf workflow.Workflow, expectedUpdatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.workflows[wf.TenantID][wf.ID]
	if !ok {
		return workflow.ErrNotFound
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return workflow.ErrConflict
	}
	s.workflows[wf.TenantID][wf.ID] = wf
	return nil
}

// GetWorkflow retrieves a workflow
func (s *MemoryWorkflowStore) GetWorkflow(tenantID, id string) (workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[tenantID][id]
	if !ok {
		return workflow.Workflow{}, workflow.ErrNotFound
	}
	return wf, nil
}

// ListWorkflows returns all workflows for a tenant
func (s *MemoryWorkflowStore) ListWorkflows(tenantID string) ([]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.Workflow, 0, len(s.workflows[tenantID]))
	for _, wf := range s.workflows[tenantID] {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteWorkflow removes a workflow and its graph versions
func (s *MemoryWorkflowStore) DeleteWorkflow(tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[tenantID][id]; !ok {
		return workflow.ErrNotFound
	}
	delete(s.workflows[tenantID], id)
	if s.versions[tenantID] != nil {
		delete(s.versions[tenantID], id)
	}
	return nil
}

// SaveGraphVersion persists one immutable graph version
func (s *MemoryWorkflowStore) SaveGraphVersion(tenantID, workflowID string, version int, g graph.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[tenantID] == nil {
		s.versions[tenantID] = make(map[string]map[int]graph.Graph)
	}
	if s.versions[tenantID][workflowID] == nil {
		s.versions[tenantID][workflowID] = make(map[int]graph.Graph)
	}
	s.versions[tenantID][workflowID][version] = g
	return nil
}

// GetGraphVersion retrieves a specific graph version
func (s *MemoryWorkflowStore) GetGraphVersion(tenantID, workflowID string, version int) (graph.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.versions[tenantID][workflowID][version]
	if !ok {
		return graph.Graph{}, workflow.ErrNotFound
	}
	return g, nil
}

// RecordExecution bumps the execution counter and last-executed time
func (s *MemoryWorkflowStore) RecordExecution(tenantID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[tenantID][id]
	if !ok {
		return workflow.ErrNotFound
	}
	wf.ExecutionCount++
	if at.IsZero() {
		at = time.Now().UTC()
	}
	wf.LastExecutedAt = &at
	s.workflows[tenantID][id] = wf
	return nil
}

// MemoryRunStore implements engine.RunStore in memory
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]engine.Run
}

// NewMemoryRunStore creates an in-memory run store
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]engine.Run)}
}

// SaveRun inserts or replaces a non-terminal run's state. Terminal runs
// are immutable history; a save against one is a no-op.
func (s *MemoryRunStore) SaveRun(run engine.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.runs[run.ID]; ok {
		if current.Terminal() {
			return nil
		}
		// Step history is owned by AppendStep
		run.Steps = current.Steps
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun retrieves a run with its steps
func (s *MemoryRunStore) GetRun(runID string) (engine.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return engine.Run{}, engine.ErrRunNotFound
	}
	run.Steps = append([]engine.StepRecord(nil), run.Steps...)
	return run, nil
}

// ListRuns returns runs for a tenant, optionally filtered by workflow
func (s *MemoryRunStore) ListRuns(tenantID, workflowID string) ([]engine.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.Run
	for _, run := range s.runs {
		if run.TenantID != tenantID {
			continue
		}
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// AppendStep appends one finished step record to a run's history
func (s *MemoryRunStore) AppendStep(runID string, step engine.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return engine.ErrRunNotFound
	}
	if run.Terminal() {
		return engine.ErrRunTerminal
	}
	run.Steps = append(run.Steps, step)
	s.runs[runID] = run
	return nil
}

// Finalize sets the terminal status; a second call is a no-op
func (s *MemoryRunStore) Finalize(runID string, status string, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return engine.ErrRunNotFound
	}
	if run.Terminal() {
		return nil
	}
	run.Status = status
	run.Error = errMsg
	run.Suspended = false
	run.SuspendedNode = ""
	run.CompletedAt = &at
	s.runs[runID] = run
	return nil
}

// MemoryContinuationStore implements engine.ContinuationStore in memory
type MemoryContinuationStore struct {
	mu            sync.RWMutex
	continuations map[string]engine.Continuation
}

// NewMemoryContinuationStore creates an in-memory continuation store
func NewMemoryContinuationStore() *MemoryContinuationStore {
	return &MemoryContinuationStore{continuations: make(map[string]engine.Continuation)}
}

// SaveContinuation stores the continuation for a suspended run
func (s *MemoryContinuationStore) SaveContinuation(c engine.Continuation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.continuations[c.RunID] = c
	return nil
}

// GetContinuation retrieves a run's continuation
func (s *MemoryContinuationStore) GetContinuation(runID string) (engine.Continuation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.continuations[runID]
	if !ok {
		return engine.Continuation{}, engine.ErrContinuationGone
	}
	return c, nil
}

// DueContinuations returns every continuation with ResumeAt <= now
func (s *MemoryContinuationStore) DueContinuations(now time.Time) ([]engine.Continuation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []engine.Continuation
	for _, c := range s.continuations {
		if !c.ResumeAt.After(now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ResumeAt.Before(due[j].ResumeAt) })
	return due, nil
}

// DeleteContinuation removes a continuation
func (s *MemoryContinuationStore) DeleteContinuation(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.continuations[runID]; !ok {
		return engine.ErrContinuationGone
	}
	delete(s.continuations, runID)
	return nil
}

// MemoryScheduleStore implements trigger.ScheduleStore in memory
type MemoryScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]trigger.Schedule
}

// NewMemoryScheduleStore creates an in-memory schedule store
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{schedules: make(map[string]trigger.Schedule)}
}

// SaveSchedule stores or replaces a workflow's schedule
func (s *MemoryScheduleStore) SaveSchedule(sched trigger.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.TenantID+"/"+sched.WorkflowID] = sched
	return nil
}

// DeleteSchedule removes a workflow's schedule
func (s *MemoryScheduleStore) DeleteSchedule(tenantID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, tenantID+"/"+workflowID)
	return nil
}

// ListSchedules returns every stored schedule
func (s *MemoryScheduleStore) ListSchedules() ([]trigger.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]trigger.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched)
	}
	return out, nil
}
