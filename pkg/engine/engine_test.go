package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeboard/automation/pkg/engine"
	"github.com/pipeboard/automation/pkg/executor"
	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/storage"
)

// fakeClock lets tests move time forward without sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []executor.OutboundMessage
	err  error
}

func (m *fakeMessenger) SendMessage(ctx context.Context, msg executor.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stageMove struct {
	leadID, stage string
}

type fakeBoard struct {
	mu     sync.Mutex
	stages []stageMove
}

func (b *fakeBoard) MoveStage(ctx context.Context, tenantID, leadID, targetStage string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stages = append(b.stages, stageMove{leadID, targetStage})
	return nil
}

func (b *fakeBoard) MoveSector(ctx context.Context, tenantID, clientID, targetSector string) error {
	return nil
}

// stubGraphs resolves pinned graph versions for resume
type stubGraphs struct {
	graphs map[string]*graph.ValidGraph
}

func newStubGraphs() *stubGraphs {
	return &stubGraphs{graphs: make(map[string]*graph.ValidGraph)}
}

func (s *stubGraphs) put(tenantID, workflowID string, version int, vg *graph.ValidGraph) {
	s.graphs[fmt.Sprintf("%s/%s/%d", tenantID, workflowID, version)] = vg
}

func (s *stubGraphs) PinnedGraph(tenantID, workflowID string, version int) (*graph.ValidGraph, error) {
	vg, ok := s.graphs[fmt.Sprintf("%s/%s/%d", tenantID, workflowID, version)]
	if !ok {
		return nil, errors.New("no such graph version")
	}
	return vg, nil
}

type testHarness struct {
	engine    engine.Engine
	clock     *fakeClock
	runs      *storage.MemoryRunStore
	conts     *storage.MemoryContinuationStore
	graphs    *stubGraphs
	messenger *fakeMessenger
	board     *fakeBoard
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		clock:     newFakeClock(),
		runs:      storage.NewMemoryRunStore(),
		conts:     storage.NewMemoryContinuationStore(),
		graphs:    newStubGraphs(),
		messenger: &fakeMessenger{},
		board:     &fakeBoard{},
	}
	h.engine = engine.New(engine.Options{
		RunStore:          h.runs,
		ContinuationStore: h.conts,
		GraphProvider:     h.graphs,
		Executors: executor.NewBuiltinRegistry(executor.Collaborators{
			Messenger: h.messenger,
			Board:     h.board,
		}),
		Clock: h.clock,
	})
	return h
}

// welcomeGraph: new_lead trigger -> whatsapp greeting -> 5 minute delay
// -> move lead to Qualified
func welcomeGraph(t *testing.T) *graph.ValidGraph {
	t.Helper()
	g := graph.Graph{
		Nodes: []graph.Node{
			{ID: "t1", Type: graph.KindTrigger, Data: graph.NodeData{
				Config: map[string]interface{}{"triggerType": "new_lead", "source": "website"},
			}},
			{ID: "greet", Type: graph.KindAction, Data: graph.NodeData{
				Config: map[string]interface{}{
					"actionType": "send_message",
					"channel":    "whatsapp",
					"message":    "Hi {{client.name}}, thanks for reaching out!",
				},
			}},
			{ID: "wait", Type: graph.KindDelay, Data: graph.NodeData{
				Config: map[string]interface{}{"duration": 5, "unit": "minutes"},
			}},
			{ID: "qualify", Type: graph.KindAction, Data: graph.NodeData{
				Config: map[string]interface{}{"actionType": "move_stage", "targetStage": "Qualified"},
			}},
		},
		Connections: []graph.Connection{
			{ID: "e1", Source: "t1", Target: "greet"},
			{ID: "e2", Source: "greet", Target: "wait"},
			{ID: "e3", Source: "wait", Target: "qualify"},
		},
	}
	vg, errs := graph.Validate(g)
	require.Empty(t, errs)
	return vg
}

func leadPayload() map[string]interface{} {
	return map[string]interface{}{
		"client": map[string]interface{}{
			"id":    "client-7",
			"name":  "Ana",
			"phone": "+5511999990000",
		},
		"lead": map[string]interface{}{
			"id":     "lead-1",
			"source": "website",
		},
	}
}

func (h *testHarness) startWelcome(t *testing.T) string {
	t.Helper()
	vg := welcomeGraph(t)
	h.graphs.put("tenant-1", "wf-1", 3, vg)

	runID, err := h.engine.Start(context.Background(), engine.StartRequest{
		TenantID:     "tenant-1",
		WorkflowID:   "wf-1",
		GraphVersion: 3,
		Graph:        vg,
		Payload:      leadPayload(),
	})
	require.NoError(t, err)
	return runID
}

func TestStartSuspendsAtDelay(t *testing.T) {
	h := newHarness(t)
	runID := h.startWelcome(t)

	run, err := h.engine.GetRun(runID)
	require.NoError(t, err)

	assert.Equal(t, engine.RunRunning, run.Status)
	assert.True(t, run.Suspended)
	assert.Equal(t, "wait", run.SuspendedNode)

	require.Len(t, run.Steps, 1)
	assert.Equal(t, "greet", run.Steps[0].NodeID)
	assert.Equal(t, engine.StepSucceeded, run.Steps[0].Status)

	require.Len(t, h.messenger.sent, 1)
	assert.Equal(t, "Hi Ana, thanks for reaching out!", h.messenger.sent[0].Body)
	assert.Equal(t, "+5511999990000", h.messenger.sent[0].To)

	cont, err := h.conts.GetContinuation(runID)
	require.NoError(t, err)
	assert.Equal(t, "wait", cont.NodeID)
	assert.Equal(t, h.clock.Now().Add(5*time.Minute), cont.ResumeAt)
}

func TestResumeDueCompletesRun(t *testing.T) {
	h := newHarness(t)
	runID := h.startWelcome(t)

	// Not due yet
	resumed, err := h.engine.ResumeDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)

	h.clock.Advance(5 * time.Minute)
	resumed, err = h.engine.ResumeDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	run, err := h.engine.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, engine.RunCompleted, run.Status)
	assert.False(t, run.Suspended)
	require.NotNil(t, run.CompletedAt)

	require.Len(t, run.Steps, 3)
	assert.Equal(t, "greet", run.Steps[0].NodeID)
	assert.Equal(t, "wait", run.Steps[1].NodeID)
	assert.Equal(t, "qualify", run.Steps[2].NodeID)
	assert.EqualValues(t, 300, run.Steps[1].Output["waited_seconds"])

	require.Len(t, h.board.stages, 1)
	assert.Equal(t, stageMove{"lead-1", "Qualified"}, h.board.stages[0])

	// The continuation is consumed; polling again is a no-op
	resumed, err = h.engine.ResumeDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)
}

func TestDelaySurvivesRestart(t *testing.T) {
	h := newHarness(t)
	runID := h.startWelcome(t)

	// A new engine over the same stores stands in for a restarted process
	restarted := engine.New(engine.Options{
		RunStore:          h.runs,
		ContinuationStore: h.conts,
		GraphProvider:     h.graphs,
		Executors: executor.NewBuiltinRegistry(executor.Collaborators{
			Messenger: h.messenger,
			Board:     h.board,
		}),
		Clock: h.clock,
	})

	h.clock.Advance(10 * time.Minute)
	resumed, err := restarted.ResumeDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	run, err := restarted.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, engine.RunCompleted, run.Status)
	assert.EqualValues(t, 600, run.Steps[1].Output["waited_seconds"])
}

func TestExecutorFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	h.messenger.err = errors.New("provider unreachable")

	runID := h.startWelcome(t)

	run, err := h.engine.GetRun(runID)
	require.NoError(t, err)

	assert.Equal(t, engine.RunFailed, run.Status)
	assert.Contains(t, run.Error, "provider unreachable")

	// The failing step is recorded; nothing after it ran
	require.Len(t, run.Steps, 1)
	assert.Equal(t, engine.StepFailed, run.Steps[0].Status)
	assert.Contains(t, run.Steps[0].Error, "provider unreachable")
	assert.Empty(t, h.board.stages)
}

func TestUnknownActionTypeFailsRun(t *testing.T) {
	h := newHarness(t)
	vg := welcomeGraph(t)

	bare := engine.New(engine.Options{
		RunStore:          h.runs,
		ContinuationStore: h.conts,
		GraphProvider:     h.graphs,
		Executors:         executor.NewRegistry(),
		Clock:             h.clock,
	})

	runID, err := bare.Start(context.Background(), engine.StartRequest{
		TenantID:   "tenant-1",
		WorkflowID: "wf-1",
		Graph:      vg,
		Payload:    leadPayload(),
	})
	require.NoError(t, err)

	run, err := bare.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, engine.RunFailed, run.Status)
	assert.Contains(t, run.Error, "no executor registered")
}

func TestCancelSuspendedRun(t *testing.T) {
	h := newHarness(t)
	runID := h.startWelcome(t)

	require.NoError(t, h.engine.Cancel(runID))

	run, err := h.engine.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, engine.RunCancelled, run.Status)
	assert.False(t, run.Suspended)

	require.Len(t, run.Steps, 2)
	assert.Equal(t, "wait", run.Steps[1].NodeID)
	assert.Equal(t, engine.StepSkipped, run.Steps[1].Status)

	// The delay never fires and the last action never runs
	h.clock.Advance(time.Hour)
	resumed, err := h.engine.ResumeDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)
	assert.Empty(t, h.board.stages)
}

func TestCancelFinishedRun(t *testing.T) {
	h := newHarness(t)
	runID := h.startWelcome(t)

	h.clock.Advance(5 * time.Minute)
	_, err := h.engine.ResumeDue(context.Background())
	require.NoError(t, err)

	err = h.engine.Cancel(runID)
	assert.ErrorIs(t, err, engine.ErrRunTerminal)
}

func TestConditionBranching(t *testing.T) {
	g := graph.Graph{
		Nodes: []graph.Node{
			{ID: "t1", Type: graph.KindTrigger, Data: graph.NodeData{
				Config: map[string]interface{}{"triggerType": "new_lead"},
			}},
			{ID: "check", Type: graph.KindCondition, Data: graph.NodeData{
				Config: map[string]interface{}{
					"field":    "lead.source",
					"operator": "equals",
					"value":    "website",
				},
			}},
			{ID: "hot", Type: graph.KindAction, Data: graph.NodeData{
				Config: map[string]interface{}{"actionType": "move_stage", "targetStage": "Hot"},
			}},
			{ID: "cold", Type: graph.KindAction, Data: graph.NodeData{
				Config: map[string]interface{}{"actionType": "move_stage", "targetStage": "Cold"},
			}},
		},
		Connections: []graph.Connection{
			{ID: "e1", Source: "t1", Target: "check"},
			{ID: "e2", Source: "check", Target: "hot", SourceHandle: "true"},
			{ID: "e3", Source: "check", Target: "cold", SourceHandle: "false"},
		},
	}
	vg, errs := graph.Validate(g)
	require.Empty(t, errs)

	h := newHarness(t)
	runID, err := h.engine.Start(context.Background(), engine.StartRequest{
		TenantID:   "tenant-1",
		WorkflowID: "wf-1",
		Graph:      vg,
		Payload:    leadPayload(),
	})
	require.NoError(t, err)

	run, err := h.engine.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, engine.RunCompleted, run.Status)

	require.Len(t, run.Steps, 2)
	assert.Equal(t, "check", run.Steps[0].NodeID)
	assert.Equal(t, true, run.Steps[0].Output["result"])
	assert.Equal(t, "hot", run.Steps[1].NodeID)

	require.Len(t, h.board.stages, 1)
	assert.Equal(t, "Hot", h.board.stages[0].stage)
}

func TestConditionFalseBranchWithoutEdgeCompletes(t *testing.T) {
	g := graph.Graph{
		Nodes: []graph.Node{
			{ID: "t1", Type: graph.KindTrigger, Data: graph.NodeData{
				Config: map[string]interface{}{"triggerType": "new_lead"},
			}},
			{ID: "check", Type: graph.KindCondition, Data: graph.NodeData{
				Config: map[string]interface{}{
					"field":    "lead.source",
					"operator": "equals",
					"value":    "referral",
				},
			}},
			{ID: "hot", Type: graph.KindAction, Data: graph.NodeData{
				Config: map[string]interface{}{"actionType": "move_stage", "targetStage": "Hot"},
			}},
		},
		Connections: []graph.Connection{
			{ID: "e1", Source: "t1", Target: "check"},
			{ID: "e2", Source: "check", Target: "hot", SourceHandle: "true"},
		},
	}
	vg, errs := graph.Validate(g)
	require.Empty(t, errs)

	h := newHarness(t)
	runID, err := h.engine.Start(context.Background(), engine.StartRequest{
		TenantID: "tenant-1", WorkflowID: "wf-1", Graph: vg, Payload: leadPayload(),
	})
	require.NoError(t, err)

	run, err := h.engine.GetRun(runID)
	require.NoError(t, err)

	// The untaken branch simply ends the run
	assert.Equal(t, engine.RunCompleted, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, false, run.Steps[0].Output["result"])
	assert.Empty(t, h.board.stages)
}

func TestTriggerOnlyGraphCompletesImmediately(t *testing.T) {
	g := graph.Graph{
		Nodes: []graph.Node{
			{ID: "t1", Type: graph.KindTrigger, Data: graph.NodeData{
				Config: map[string]interface{}{"triggerType": "new_lead"},
			}},
		},
	}
	vg, errs := graph.Validate(g)
	require.Empty(t, errs)

	h := newHarness(t)
	runID, err := h.engine.Start(context.Background(), engine.StartRequest{
		TenantID: "tenant-1", WorkflowID: "wf-1", Graph: vg,
	})
	require.NoError(t, err)

	run, err := h.engine.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, engine.RunCompleted, run.Status)
	assert.Empty(t, run.Steps)
}

func TestSubscribeStreamsResumeEvents(t *testing.T) {
	h := newHarness(t)
	runID := h.startWelcome(t)

	events, unsubscribe := h.engine.Subscribe(runID)
	defer unsubscribe()

	h.clock.Advance(5 * time.Minute)
	_, err := h.engine.ResumeDue(context.Background())
	require.NoError(t, err)

	var types []string
	for len(events) > 0 {
		evt := <-events
		types = append(types, evt.Type)
	}

	assert.Contains(t, types, engine.EventRunResumed)
	assert.Contains(t, types, engine.EventStepFinished)
	assert.Contains(t, types, engine.EventRunFinished)
}
