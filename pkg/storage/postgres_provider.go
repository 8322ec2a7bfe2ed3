package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pipeboard/automation/pkg/engine"
	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/trigger"
	"github.com/pipeboard/automation/pkg/workflow"
)

// PostgresProviderConfig holds connection settings for PostgreSQL
type PostgresProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// PostgresProvider implements the StorageProvider interface using PostgreSQL
type PostgresProvider struct {
	config PostgresProviderConfig
	db     *sql.DB

	workflowStore     *PostgresWorkflowStore
	runStore          *PostgresRunStore
	continuationStore *PostgresContinuationStore
	scheduleStore     *PostgresScheduleStore
}

// NewPostgresProvider creates a new PostgreSQL storage provider
func NewPostgresProvider(config PostgresProviderConfig) *PostgresProvider {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	return &PostgresProvider{config: config}
}

// Initialize opens the connection and creates the schema if needed
func (p *PostgresProvider) Initialize() error {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.config.Host, p.config.Port, p.config.User, p.config.Password,
		p.config.Database, p.config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	p.db = db

	if err := p.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	p.workflowStore = &PostgresWorkflowStore{db: db}
	p.runStore = &PostgresRunStore{db: db}
	p.continuationStore = &PostgresContinuationStore{db: db}
	p.scheduleStore = &PostgresScheduleStore{db: db}
	return nil
}

// Close closes the database connection
func (p *PostgresProvider) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// GetWorkflowStore returns a store for workflow definitions
func (p *PostgresProvider) GetWorkflowStore() workflow.WorkflowStore { return p.workflowStore }

// GetRunStore returns a store for run history
func (p *PostgresProvider) GetRunStore() engine.RunStore { return p.runStore }

// GetContinuationStore returns a store for delay continuations
func (p *PostgresProvider) GetContinuationStore() engine.ContinuationStore {
	return p.continuationStore
}

// GetScheduleStore returns a store for time_based trigger schedules
func (p *PostgresProvider) GetScheduleStore() trigger.ScheduleStore { return p.scheduleStore }

func (p *PostgresProvider) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			tenant_id        TEXT NOT NULL,
			id               TEXT NOT NULL,
			name             TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			graph            JSONB NOT NULL,
			graph_version    INTEGER NOT NULL,
			execution_count  BIGINT NOT NULL DEFAULT 0,
			last_executed_at TIMESTAMPTZ,
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (tenant_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_graph_versions (
			tenant_id   TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			version     INTEGER NOT NULL,
			graph       JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, workflow_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id              TEXT PRIMARY KEY,
			tenant_id       TEXT NOT NULL,
			workflow_id     TEXT NOT NULL,
			graph_version   INTEGER NOT NULL,
			trigger_payload JSONB,
			status          TEXT NOT NULL,
			suspended       BOOLEAN NOT NULL DEFAULT FALSE,
			suspended_node  TEXT NOT NULL DEFAULT '',
			error           TEXT NOT NULL DEFAULT '',
			started_at      TIMESTAMPTZ NOT NULL,
			completed_at    TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS runs_tenant_workflow_idx
			ON runs (tenant_id, workflow_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			seq          SERIAL PRIMARY KEY,
			run_id       TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
			node_id      TEXT NOT NULL,
			status       TEXT NOT NULL,
			input        JSONB,
			output       JSONB,
			error        TEXT NOT NULL DEFAULT '',
			started_at   TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS run_steps_run_idx ON run_steps (run_id, seq)`,
		`CREATE TABLE IF NOT EXISTS continuations (
			run_id        TEXT PRIMARY KEY,
			tenant_id     TEXT NOT NULL,
			workflow_id   TEXT NOT NULL,
			graph_version INTEGER NOT NULL,
			node_id       TEXT NOT NULL,
			context       JSONB NOT NULL,
			suspended_at  TIMESTAMPTZ NOT NULL,
			resume_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS continuations_resume_idx ON continuations (resume_at)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			tenant_id   TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			expression  TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (tenant_id, workflow_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := p.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// PostgresWorkflowStore implements workflow.WorkflowStore on PostgreSQL
type PostgresWorkflowStore struct {
	db *sql.DB
}

// SaveWorkflow persists a new workflow
func (s *PostgresWorkflowStore) SaveWorkflow(wf workflow.Workflow) error {
	graphJSON, err := json.Marshal(wf.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO workflows
			(tenant_id, id, name, description, status, graph, graph_version,
			 execution_count, last_executed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			graph = EXCLUDED.graph,
			graph_version = EXCLUDED.graph_version,
			updated_at = EXCLUDED.updated_at`,
		wf.TenantID, wf.ID, wf.Name, wf.Description, wf.Status, graphJSON,
		wf.GraphVersion, wf.ExecutionCount, wf.LastExecutedAt, wf.CreatedAt, wf.UpdatedAt)
	return err
}

// UpdateWorkflow replaces a workflow record under optimistic concurrency
func (s *PostgresWorkflowStore) UpdateWorkflow(wf workflow.Workflow, expectedUpdatedAt time.Time) error {
	graphJSON, err := json.Marshal(wf.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	result, err := s.db.Exec(`
		UPDATE workflows SET
			name = $1, description = $2, status = $3, graph = $4,
			graph_version = $5, updated_at = $6
		WHERE tenant_id = $7 AND id = $8 AND updated_at = $9`,
		wf.Name, wf.Description, wf.Status, graphJSON,
		wf.GraphVersion, wf.UpdatedAt, wf.TenantID, wf.ID, expectedUpdatedAt)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish a missing row from a stale token
		var exists bool
		err := s.db.QueryRow(`SELECT TRUE FROM workflows WHERE tenant_id = $1 AND id = $2`,
			wf.TenantID, wf.ID).Scan(&exists)
		if err == sql.ErrNoRows {
			return workflow.ErrNotFound
		}
		if err != nil {
			return err
		}
		return workflow.ErrConflict
	}
	return nil
}

// GetWorkflow retrieves a workflow
func (s *PostgresWorkflowStore) GetWorkflow(tenantID, id string) (workflow.Workflow, error) {
	row := s.db.QueryRow(`
		SELECT tenant_id, id, name, description, status, graph, graph_version,
		       execution_count, last_executed_at, created_at, updated_at
		FROM workflows WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanWorkflow(row)
}

// ListWorkflows returns all workflows for a tenant
func (s *PostgresWorkflowStore) ListWorkflows(tenantID string) ([]workflow.Workflow, error) {
	rows, err := s.db.Query(`
		SELECT tenant_id, id, name, description, status, graph, graph_version,
		       execution_count, last_executed_at, created_at, updated_at
		FROM workflows WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (workflow.Workflow, error) {
	var wf workflow.Workflow
	var graphJSON []byte
	var lastExecutedAt sql.NullTime
	err := row.Scan(&wf.TenantID, &wf.ID, &wf.Name, &wf.Description, &wf.Status,
		&graphJSON, &wf.GraphVersion, &wf.ExecutionCount, &lastExecutedAt,
		&wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return workflow.Workflow{}, workflow.ErrNotFound
	}
	if err != nil {
		return workflow.Workflow{}, err
	}
	if err := json.Unmarshal(graphJSON, &wf.Graph); err != nil {
		return workflow.Workflow{}, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	if lastExecutedAt.Valid {
		t := lastExecutedAt.Time
		wf.LastExecutedAt = &t
	}
	return wf, nil
}

// DeleteWorkflow removes a workflow and its graph versions
func (s *PostgresWorkflowStore) DeleteWorkflow(tenantID, id string) error {
	result, err := s.db.Exec(`DELETE FROM workflows WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return workflow.ErrNotFound
	}
	_, err = s.db.Exec(`DELETE FROM workflow_graph_versions WHERE tenant_id = $1 AND workflow_id = $2`,
		tenantID, id)
	return err
}

// SaveGraphVersion persists one immutable graph version
func (s *PostgresWorkflowStore) SaveGraphVersion(tenantID, workflowID string, version int, g graph.Graph) error {
	graphJSON, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO workflow_graph_versions (tenant_id, workflow_id, version, graph)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, workflow_id, version) DO NOTHING`,
		tenantID, workflowID, version, graphJSON)
	return err
}

// GetGraphVersion retrieves a specific graph version
func (s *PostgresWorkflowStore) GetGraphVersion(tenantID, workflowID string, version int) (graph.Graph, error) {
	var graphJSON []byte
	err := s.db.QueryRow(`
		SELECT graph FROM workflow_graph_versions
		WHERE tenant_id = $1 AND workflow_id = $2 AND version = $3`,
		tenantID, workflowID, version).Scan(&graphJSON)
	if err == sql.ErrNoRows {
		return graph.Graph{}, workflow.ErrNotFound
	}
	if err != nil {
		return graph.Graph{}, err
	}
	var g graph.Graph
	if err := json.Unmarshal(graphJSON, &g); err != nil {
		return graph.Graph{}, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return g, nil
}

// RecordExecution bumps the execution counter and last-executed time
func (s *PostgresWorkflowStore) RecordExecution(tenantID, id string, at time.Time) error {
	result, err := s.db.Exec(`
		UPDATE workflows SET execution_count = execution_count + 1, last_executed_at = $1
		WHERE tenant_id = $2 AND id = $3`, at, tenantID, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

// PostgresRunStore implements engine.RunStore on PostgreSQL
type PostgresRunStore struct {
	db *sql.DB
}

// SaveRun inserts or replaces a non-terminal run's state. The WHERE
// clause on the update arm keeps terminal runs immutable.
func (s *PostgresRunStore) SaveRun(run engine.Run) error {
	payloadJSON, err := json.Marshal(run.TriggerPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger payload: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO runs
			(id, tenant_id, workflow_id, graph_version, trigger_payload,
			 status, suspended, suspended_node, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			suspended = EXCLUDED.suspended,
			suspended_node = EXCLUDED.suspended_node,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
		WHERE runs.status IN ('pending', 'running')`,
		run.ID, run.TenantID, run.WorkflowID, run.GraphVersion, payloadJSON,
		run.Status, run.Suspended, run.SuspendedNode, run.Error,
		run.StartedAt, run.CompletedAt)
	return err
}

// GetRun retrieves a run with its steps
func (s *PostgresRunStore) GetRun(runID string) (engine.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, tenant_id, workflow_id, graph_version, trigger_payload,
		       status, suspended, suspended_node, error, started_at, completed_at
		FROM runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if err != nil {
		return engine.Run{}, err
	}
	steps, err := s.loadSteps(runID)
	if err != nil {
		return engine.Run{}, err
	}
	run.Steps = steps
	return run, nil
}

// ListRuns returns runs for a tenant, optionally filtered by workflow.
// Step histories are loaded per run; listings are small and paging
// belongs in the API layer.
func (s *PostgresRunStore) ListRuns(tenantID, workflowID string) ([]engine.Run, error) {
	query := `
		SELECT id, tenant_id, workflow_id, graph_version, trigger_payload,
		       status, suspended, suspended_node, error, started_at, completed_at
		FROM runs WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if workflowID != "" {
		query += ` AND workflow_id = $2`
		args = append(args, workflowID)
	}
	query += ` ORDER BY started_at`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		steps, err := s.loadSteps(out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Steps = steps
	}
	return out, nil
}

func scanRun(row rowScanner) (engine.Run, error) {
	var run engine.Run
	var payloadJSON []byte
	var completedAt sql.NullTime
	err := row.Scan(&run.ID, &run.TenantID, &run.WorkflowID, &run.GraphVersion,
		&payloadJSON, &run.Status, &run.Suspended, &run.SuspendedNode,
		&run.Error, &run.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return engine.Run{}, engine.ErrRunNotFound
	}
	if err != nil {
		return engine.Run{}, err
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &run.TriggerPayload); err != nil {
			return engine.Run{}, fmt.Errorf("failed to unmarshal trigger payload: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

func (s *PostgresRunStore) loadSteps(runID string) ([]engine.StepRecord, error) {
	rows, err := s.db.Query(`
		SELECT node_id, status, input, output, error, started_at, completed_at
		FROM run_steps WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []engine.StepRecord
	for rows.Next() {
		var step engine.StepRecord
		var inputJSON, outputJSON []byte
		var completedAt sql.NullTime
		if err := rows.Scan(&step.NodeID, &step.Status, &inputJSON, &outputJSON,
			&step.Error, &step.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		if len(inputJSON) > 0 {
			if err := json.Unmarshal(inputJSON, &step.Input); err != nil {
				return nil, fmt.Errorf("failed to unmarshal step input: %w", err)
			}
		}
		if len(outputJSON) > 0 {
			if err := json.Unmarshal(outputJSON, &step.Output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
			}
		}
		if completedAt.Valid {
			t := completedAt.Time
			step.CompletedAt = &t
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// AppendStep appends one finished step record to a run's history
func (s *PostgresRunStore) AppendStep(runID string, step engine.StepRecord) error {
	var status string
	err := s.db.QueryRow(`SELECT status FROM runs WHERE id = $1`, runID).Scan(&status)
	if err == sql.ErrNoRows {
		return engine.ErrRunNotFound
	}
	if err != nil {
		return err
	}
	if status != engine.RunPending && status != engine.RunRunning {
		return engine.ErrRunTerminal
	}

	inputJSON, err := json.Marshal(step.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}
	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO run_steps (run_id, node_id, status, input, output, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		runID, step.NodeID, step.Status, inputJSON, outputJSON,
		step.Error, step.StartedAt, step.CompletedAt)
	return err
}

// Finalize sets the terminal status; a second call is a no-op
func (s *PostgresRunStore) Finalize(runID string, status string, errMsg string, at time.Time) error {
	result, err := s.db.Exec(`
		UPDATE runs SET status = $1, error = $2, suspended = FALSE,
			suspended_node = '', completed_at = $3
		WHERE id = $4 AND status IN ('pending', 'running')`,
		status, errMsg, at, runID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		err := s.db.QueryRow(`SELECT TRUE FROM runs WHERE id = $1`, runID).Scan(&exists)
		if err == sql.ErrNoRows {
			return engine.ErrRunNotFound
		}
		return err
	}
	return nil
}

// PostgresContinuationStore implements engine.ContinuationStore on PostgreSQL
type PostgresContinuationStore struct {
	db *sql.DB
}

// SaveContinuation stores the continuation for a suspended run
func (s *PostgresContinuationStore) SaveContinuation(c engine.Continuation) error {
	contextJSON, err := json.Marshal(c.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal continuation context: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO continuations
			(run_id, tenant_id, workflow_id, graph_version, node_id, context, suspended_at, resume_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			node_id = EXCLUDED.node_id,
			context = EXCLUDED.context,
			suspended_at = EXCLUDED.suspended_at,
			resume_at = EXCLUDED.resume_at`,
		c.RunID, c.TenantID, c.WorkflowID, c.GraphVersion, c.NodeID,
		contextJSON, c.SuspendedAt, c.ResumeAt)
	return err
}

// GetContinuation retrieves a run's continuation
func (s *PostgresContinuationStore) GetContinuation(runID string) (engine.Continuation, error) {
	row := s.db.QueryRow(`
		SELECT run_id, tenant_id, workflow_id, graph_version, node_id, context, suspended_at, resume_at
		FROM continuations WHERE run_id = $1`, runID)
	return scanContinuation(row)
}

// DueContinuations returns every continuation with ResumeAt <= now
func (s *PostgresContinuationStore) DueContinuations(now time.Time) ([]engine.Continuation, error) {
	rows, err := s.db.Query(`
		SELECT run_id, tenant_id, workflow_id, graph_version, node_id, context, suspended_at, resume_at
		FROM continuations WHERE resume_at <= $1 ORDER BY resume_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []engine.Continuation
	for rows.Next() {
		c, err := scanContinuation(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

func scanContinuation(row rowScanner) (engine.Continuation, error) {
	var c engine.Continuation
	var contextJSON []byte
	err := row.Scan(&c.RunID, &c.TenantID, &c.WorkflowID, &c.GraphVersion,
		&c.NodeID, &contextJSON, &c.SuspendedAt, &c.ResumeAt)
	if err == sql.ErrNoRows {
		return engine.Continuation{}, engine.ErrContinuationGone
	}
	if err != nil {
		return engine.Continuation{}, err
	}
	if err := json.Unmarshal(contextJSON, &c.Context); err != nil {
		return engine.Continuation{}, fmt.Errorf("failed to unmarshal continuation context: %w", err)
	}
	return c, nil
}

// DeleteContinuation removes a continuation. The engine uses the delete
// as the resume claim, so a missing row must be reported.
func (s *PostgresContinuationStore) DeleteContinuation(runID string) error {
	result, err := s.db.Exec(`DELETE FROM continuations WHERE run_id = $1`, runID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return engine.ErrContinuationGone
	}
	return nil
}

// PostgresScheduleStore implements trigger.ScheduleStore on PostgreSQL
type PostgresScheduleStore struct {
	db *sql.DB
}

// SaveSchedule stores or replaces a workflow's schedule
func (s *PostgresScheduleStore) SaveSchedule(sched trigger.Schedule) error {
	_, err := s.db.Exec(`
		INSERT INTO schedules (tenant_id, workflow_id, expression, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, workflow_id) DO UPDATE SET
			expression = EXCLUDED.expression`,
		sched.TenantID, sched.WorkflowID, sched.Expression, sched.CreatedAt)
	return err
}

// DeleteSchedule removes a workflow's schedule
func (s *PostgresScheduleStore) DeleteSchedule(tenantID, workflowID string) error {
	_, err := s.db.Exec(`DELETE FROM schedules WHERE tenant_id = $1 AND workflow_id = $2`,
		tenantID, workflowID)
	return err
}

// ListSchedules returns every stored schedule
func (s *PostgresScheduleStore) ListSchedules() ([]trigger.Schedule, error) {
	rows, err := s.db.Query(`SELECT tenant_id, workflow_id, expression, created_at FROM schedules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trigger.Schedule
	for rows.Next() {
		var sched trigger.Schedule
		if err := rows.Scan(&sched.TenantID, &sched.WorkflowID, &sched.Expression, &sched.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}
