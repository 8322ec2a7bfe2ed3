package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pipeboard/automation/pkg/executor"
	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/logging"
	"github.com/pipeboard/automation/pkg/scripting"
)

const defaultStepTimeout = 30 * time.Second

// Options configures the execution engine
type Options struct {
	RunStore          RunStore
	ContinuationStore ContinuationStore
	GraphProvider     GraphProvider
	Executors         *executor.Registry
	Evaluator         scripting.ExpressionEvaluator
	Logger            logging.Logger

	// Clock defaults to the wall clock
	Clock Clock

	// StepTimeout bounds each executor call; zero means 30s. AI calls
	// are slow, so the default is generous.
	StepTimeout time.Duration
}

// executionEngine implements the Engine interface
type executionEngine struct {
	runs          RunStore
	continuations ContinuationStore
	graphs        GraphProvider
	executors     *executor.Registry
	evaluator     scripting.ExpressionEvaluator
	logger        logging.Logger
	clock         Clock
	stepTimeout   time.Duration
	broker        *eventBroker
	cancelled     sync.Map // runID -> struct{}, best-effort mid-walk cancel
}

// New creates an execution engine
func New(opts Options) Engine {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock{}
	}
	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = scripting.NewJSExpressionEvaluator(scripting.EvaluatorOptions{})
	}

	return &executionEngine{
		runs:          opts.RunStore,
		continuations: opts.ContinuationStore,
		graphs:        opts.GraphProvider,
		executors:     opts.Executors,
		evaluator:     evaluator,
		logger:        logger,
		clock:         clock,
		stepTimeout:   timeout,
		broker:        newEventBroker(),
	}
}

// Start creates a run and walks it until it completes, fails or
// suspends at a delay node.
func (e *executionEngine) Start(ctx context.Context, req StartRequest) (string, error) {
	now := e.clock.Now().UTC()
	run := Run{
		ID:             uuid.New().String(),
		TenantID:       req.TenantID,
		WorkflowID:     req.WorkflowID,
		GraphVersion:   req.GraphVersion,
		TriggerPayload: copyContext(req.Payload),
		Status:         RunPending,
		StartedAt:      now,
	}
	if err := e.runs.SaveRun(run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	run.Status = RunRunning
	if err := e.runs.SaveRun(run); err != nil {
		return run.ID, fmt.Errorf("failed to start run: %w", err)
	}

	e.logger.LogRunEvent(run.WorkflowID, run.ID, "started", nil)
	e.publish(run, EventRunStarted, "", RunRunning, nil)

	runCtx := copyContext(req.Payload)
	if runCtx == nil {
		runCtx = map[string]interface{}{}
	}

	// The trigger node itself produces no step record; the walk begins
	// at its single outgoing edge. A trigger with no edge completes the
	// run immediately.
	next, ok := req.Graph.Outgoing(req.Graph.Trigger.ID, graph.PortDefault)
	if !ok {
		e.finalize(run, RunCompleted, "")
		return run.ID, nil
	}

	e.walk(ctx, run, req.Graph, next.Target, runCtx)
	return run.ID, nil
}

// walk advances a run node by node until a terminal node, a failure, a
// cancellation or a delay suspension. Steps within one run execute in
// strict graph-walk order.
func (e *executionEngine) walk(ctx context.Context, run Run, vg *graph.ValidGraph, nodeID string, runCtx map[string]interface{}) {
	current := nodeID
	for current != "" {
		if e.cancelObserved(run.ID) {
			e.finalize(run, RunCancelled, "")
			return
		}

		node, ok := vg.Node(current)
		if !ok {
			e.finalize(run, RunFailed, fmt.Sprintf("graph has no node %q", current))
			return
		}

		switch node.Type {
		case graph.KindCondition:
			cfg := vg.Config(node.ID).(*graph.ConditionConfig)
			started := e.clock.Now().UTC()
			result := e.evalCondition(cfg, runCtx)
			port := graph.PortFalse
			if result {
				port = graph.PortTrue
			}

			e.appendStep(run, StepRecord{
				NodeID:    node.ID,
				Status:    StepSucceeded,
				Input:     copyContext(runCtx),
				Output:    map[string]interface{}{"result": result, "port": port},
				StartedAt: started,
			})

			current = e.nextTarget(vg, node.ID, port)

		case graph.KindDelay:
			e.suspend(run, vg, node, runCtx)
			return

		case graph.KindAction, graph.KindAIStep:
			if !e.executeStep(ctx, &run, vg, node, runCtx) {
				return
			}
			current = e.nextTarget(vg, node.ID, graph.PortDefault)

		default:
			// Validation rejects edges into trigger nodes; reaching one
			// mid-walk means the stored graph is corrupt.
			e.finalize(run, RunFailed, fmt.Sprintf("cannot execute node %s of kind %q", node.ID, node.Type))
			return
		}
	}

	e.finalize(run, RunCompleted, "")
}

// executeStep invokes the registered executor for an action or ai-step
// node. It reports whether the walk should continue.
func (e *executionEngine) executeStep(ctx context.Context, run *Run, vg *graph.ValidGraph, node graph.Node, runCtx map[string]interface{}) bool {
	cfg := vg.Config(node.ID).(*graph.ActionConfig)
	started := e.clock.Now().UTC()
	input := copyContext(runCtx)

	e.publish(*run, EventStepStarted, node.ID, StepRunning, map[string]interface{}{"action_type": cfg.ActionType})
	e.logger.LogNodeEvent(run.WorkflowID, run.ID, node.ID, "started", map[string]interface{}{"action_type": cfg.ActionType})

	exec, ok := e.executors.Get(cfg.ActionType)
	if !ok {
		err := executor.Errorf(executor.ErrKindUnknownType, "no executor registered for %q", cfg.ActionType)
		e.failStep(*run, node.ID, input, started, err)
		return false
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	patch, err := exec.Execute(stepCtx, executor.Request{
		TenantID: run.TenantID,
		Node:     node,
		Config:   cfg,
		Context:  runCtx,
	})
	cancel()

	if err != nil {
		// Timeouts convert to a failed step, never an engine crash
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			var execErr *executor.ExecutorError
			if !errors.As(err, &execErr) || execErr.Kind != executor.ErrKindTimeout {
				err = executor.Errorf(executor.ErrKindTimeout, "step exceeded its %s budget: %v", e.stepTimeout, err)
			}
		}
		e.failStep(*run, node.ID, input, started, err)
		return false
	}

	if patch != nil {
		mergeContext(runCtx, patch)
	}

	e.appendStep(*run, StepRecord{
		NodeID:    node.ID,
		Status:    StepSucceeded,
		Input:     input,
		Output:    patch,
		StartedAt: started,
	})
	return true
}

// suspend parks the run at a delay node with a durable continuation
func (e *executionEngine) suspend(run Run, vg *graph.ValidGraph, node graph.Node, runCtx map[string]interface{}) {
	cfg := vg.Config(node.ID).(*graph.DelayConfig)
	now := e.clock.Now().UTC()
	resumeAt := now.Add(time.Duration(cfg.Seconds()) * time.Second)

	cont := Continuation{
		RunID:        run.ID,
		TenantID:     run.TenantID,
		WorkflowID:   run.WorkflowID,
		GraphVersion: run.GraphVersion,
		NodeID:       node.ID,
		Context:      copyContext(runCtx),
		SuspendedAt:  now,
		ResumeAt:     resumeAt,
	}
	if err := e.continuations.SaveContinuation(cont); err != nil {
		e.finalize(run, RunFailed, fmt.Sprintf("failed to persist delay continuation: %v", err))
		return
	}

	run.Status = RunRunning
	run.Suspended = true
	run.SuspendedNode = node.ID
	if err := e.runs.SaveRun(run); err != nil {
		e.logger.Error("failed to mark run suspended", logField("run_id", run.ID), logField("error", err.Error()))
	}

	e.logger.LogNodeEvent(run.WorkflowID, run.ID, node.ID, "suspended", map[string]interface{}{
		"resume_at": resumeAt,
	})
	e.publish(run, EventRunSuspended, node.ID, RunRunning, map[string]interface{}{"resume_at": resumeAt})
}

// ResumeDue resumes every continuation due at the current clock time
func (e *executionEngine) ResumeDue(ctx context.Context) (int, error) {
	now := e.clock.Now().UTC()
	due, err := e.continuations.DueContinuations(now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due continuations: %w", err)
	}

	resumed := 0
	for _, cont := range due {
		if err := e.resume(ctx, cont); err != nil {
			e.logger.Error("failed to resume run",
				logField("run_id", cont.RunID), logField("error", err.Error()))
			continue
		}
		resumed++
	}
	return resumed, nil
}

func (e *executionEngine) resume(ctx context.Context, cont Continuation) error {
	// Claim the continuation first so a concurrent poll cannot resume
	// the same run twice.
	if err := e.continuations.DeleteContinuation(cont.RunID); err != nil {
		if errors.Is(err, ErrContinuationGone) {
			return nil
		}
		return err
	}

	run, err := e.runs.GetRun(cont.RunID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}

	vg, err := e.graphs.PinnedGraph(cont.TenantID, cont.WorkflowID, cont.GraphVersion)
	if err != nil {
		e.finalize(run, RunFailed, fmt.Sprintf("failed to load pinned graph version %d: %v", cont.GraphVersion, err))
		return nil
	}

	node, ok := vg.Node(cont.NodeID)
	if !ok {
		e.finalize(run, RunFailed, fmt.Sprintf("pinned graph has no delay node %q", cont.NodeID))
		return nil
	}
	cfg := vg.Config(node.ID).(*graph.DelayConfig)

	run.Suspended = false
	run.SuspendedNode = ""
	if err := e.runs.SaveRun(run); err != nil {
		return err
	}

	now := e.clock.Now().UTC()
	e.appendStep(run, StepRecord{
		NodeID: node.ID,
		Status: StepSucceeded,
		Input:  copyContext(cont.Context),
		Output: map[string]interface{}{
			"waited_seconds": int64(now.Sub(cont.SuspendedAt).Seconds()),
			"duration":       cfg.Duration,
			"unit":           cfg.Unit,
		},
		StartedAt: cont.SuspendedAt,
	})

	e.logger.LogNodeEvent(run.WorkflowID, run.ID, node.ID, "resumed", nil)
	e.publish(run, EventRunResumed, node.ID, RunRunning, nil)

	e.walk(ctx, run, vg, e.nextTarget(vg, node.ID, graph.PortDefault), copyContext(cont.Context))
	return nil
}

// Cancel stops a run. A run suspended at a delay cancels immediately;
// a run mid-executor-call cancels after the in-flight step finishes.
func (e *executionEngine) Cancel(runID string) error {
	run, err := e.runs.GetRun(runID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return ErrRunTerminal
	}

	cont, err := e.continuations.GetContinuation(runID)
	if err == nil {
		if err := e.continuations.DeleteContinuation(runID); err != nil && !errors.Is(err, ErrContinuationGone) {
			return err
		}
		now := e.clock.Now().UTC()
		e.appendStep(run, StepRecord{
			NodeID:      cont.NodeID,
			Status:      StepSkipped,
			Input:       copyContext(cont.Context),
			StartedAt:   cont.SuspendedAt,
			CompletedAt: &now,
		})
		e.finalize(run, RunCancelled, "")
		return nil
	}
	if !errors.Is(err, ErrContinuationGone) {
		return err
	}

	// Best-effort: the walk observes the flag between steps
	e.cancelled.Store(runID, struct{}{})

	// Finalize sweeps the flag, so a walk that went terminal before the
	// store above would never clear this entry. Re-check and sweep here.
	run, err = e.runs.GetRun(runID)
	if err != nil {
		e.cancelled.Delete(runID)
		return err
	}
	if run.Terminal() {
		e.cancelled.Delete(runID)
		return ErrRunTerminal
	}
	return nil
}

// GetRun retrieves a run with its step history
func (e *executionEngine) GetRun(runID string) (Run, error) {
	return e.runs.GetRun(runID)
}

// ListRuns returns runs for a tenant, optionally filtered by workflow
func (e *executionEngine) ListRuns(tenantID, workflowID string) ([]Run, error) {
	return e.runs.ListRuns(tenantID, workflowID)
}

// Subscribe returns a channel of run events for live log views
func (e *executionEngine) Subscribe(runID string) (<-chan Event, func()) {
	return e.broker.subscribe(runID)
}

func (e *executionEngine) cancelObserved(runID string) bool {
	_, ok := e.cancelled.Load(runID)
	return ok
}

func (e *executionEngine) nextTarget(vg *graph.ValidGraph, nodeID, port string) string {
	conn, ok := vg.Outgoing(nodeID, port)
	if !ok {
		return ""
	}
	return conn.Target
}

// appendStep closes out a step record and publishes it
func (e *executionEngine) appendStep(run Run, step StepRecord) {
	if step.CompletedAt == nil {
		now := e.clock.Now().UTC()
		step.CompletedAt = &now
	}
	if err := e.runs.AppendStep(run.ID, step); err != nil {
		e.logger.Error("failed to append step record",
			logField("run_id", run.ID), logField("node_id", step.NodeID), logField("error", err.Error()))
	}

	e.logger.LogNodeEvent(run.WorkflowID, run.ID, step.NodeID, step.Status, nil)
	e.publish(run, EventStepFinished, step.NodeID, step.Status, map[string]interface{}{
		"output": step.Output,
		"error":  step.Error,
	})
}

func (e *executionEngine) failStep(run Run, nodeID string, input map[string]interface{}, started time.Time, err error) {
	e.appendStep(run, StepRecord{
		NodeID:    nodeID,
		Status:    StepFailed,
		Input:     input,
		Error:     err.Error(),
		StartedAt: started,
	})
	e.finalize(run, RunFailed, err.Error())
}

// finalize records the terminal status. The run store treats a second
// finalize as a no-op, so the terminal transition happens exactly once.
func (e *executionEngine) finalize(run Run, status, errMsg string) {
	now := e.clock.Now().UTC()
	if err := e.runs.Finalize(run.ID, status, errMsg, now); err != nil {
		e.logger.Error("failed to finalize run",
			logField("run_id", run.ID), logField("error", err.Error()))
	}
	e.cancelled.Delete(run.ID)

	e.logger.LogRunEvent(run.WorkflowID, run.ID, status, nil)
	e.publish(run, EventRunFinished, "", status, map[string]interface{}{"error": errMsg})
}

func (e *executionEngine) publish(run Run, eventType, nodeID, status string, data map[string]interface{}) {
	e.broker.publish(Event{
		Type:       eventType,
		Timestamp:  e.clock.Now().UTC(),
		TenantID:   run.TenantID,
		WorkflowID: run.WorkflowID,
		RunID:      run.ID,
		NodeID:     nodeID,
		Status:     status,
		Data:       data,
	})
}

func logField(key string, value interface{}) logging.Field {
	return logging.Field{Key: key, Value: value}
}
