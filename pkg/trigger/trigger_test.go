package trigger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeboard/automation/pkg/engine"
	"github.com/pipeboard/automation/pkg/executor"
	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/storage"
	"github.com/pipeboard/automation/pkg/trigger"
	"github.com/pipeboard/automation/pkg/workflow"
)

type recordingExecutor struct {
	mu    sync.Mutex
	calls []executor.Request
}

func (r *recordingExecutor) Execute(ctx context.Context, req executor.Request) (map[string]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	return map[string]interface{}{"sent": true}, nil
}

type fixture struct {
	registry workflow.Registry
	engine   engine.Engine
	service  *trigger.Service
	exec     *recordingExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := workflow.NewRegistry(storage.NewMemoryWorkflowStore())

	exec := &recordingExecutor{}
	executors := executor.NewRegistry()
	executors.Register(graph.ActionSendMessage, exec)

	eng := engine.New(engine.Options{
		RunStore:          storage.NewMemoryRunStore(),
		ContinuationStore: storage.NewMemoryContinuationStore(),
		GraphProvider:     reg,
		Executors:         executors,
	})

	return &fixture{
		registry: reg,
		engine:   eng,
		service:  trigger.NewService(reg, eng, nil),
		exec:     exec,
	}
}

// addWorkflow creates an active workflow whose trigger carries the
// given config, wired to a single send_message action.
func (f *fixture) addWorkflow(t *testing.T, tenantID, name string, triggerCfg map[string]interface{}) workflow.Workflow {
	t.Helper()
	wf, err := f.registry.Create(tenantID, name, "")
	require.NoError(t, err)

	g := graph.Graph{
		Nodes: []graph.Node{
			{ID: "t1", Type: graph.KindTrigger, Data: graph.NodeData{Config: triggerCfg}},
			{ID: "a1", Type: graph.KindAction, Data: graph.NodeData{
				Config: map[string]interface{}{
					"actionType": "send_message",
					"channel":    "whatsapp",
					"message":    "ping",
				},
			}},
		},
		Connections: []graph.Connection{
			{ID: "e1", Source: "t1", Target: "a1"},
		},
	}

	wf, errs, err := f.registry.SaveGraph(tenantID, wf.ID, g, wf.UpdatedAt)
	require.NoError(t, err)
	require.Empty(t, errs)

	wf, err = f.registry.SetStatus(tenantID, wf.ID, workflow.StatusActive)
	require.NoError(t, err)
	return wf
}

func matchedIDs(t *testing.T, f *fixture, ev trigger.Event) []string {
	t.Helper()
	candidates, err := trigger.NewMatcher(f.registry).Match(ev)
	require.NoError(t, err)
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Workflow.ID)
	}
	return ids
}

func TestMatchNewLeadSourceFilter(t *testing.T) {
	f := newFixture(t)
	filtered := f.addWorkflow(t, "tenant-1", "website leads", map[string]interface{}{
		"triggerType": "new_lead", "source": "website",
	})
	catchAll := f.addWorkflow(t, "tenant-1", "all leads", map[string]interface{}{
		"triggerType": "new_lead",
	})

	ids := matchedIDs(t, f, trigger.Event{
		Type:     trigger.EventNewLead,
		TenantID: "tenant-1",
		Lead:     map[string]interface{}{"source": "website"},
	})
	assert.ElementsMatch(t, []string{filtered.ID, catchAll.ID}, ids)

	ids = matchedIDs(t, f, trigger.Event{
		Type:     trigger.EventNewLead,
		TenantID: "tenant-1",
		Lead:     map[string]interface{}{"source": "referral"},
	})
	assert.Equal(t, []string{catchAll.ID}, ids)
}

func TestMatchSkipsInactiveWorkflows(t *testing.T) {
	f := newFixture(t)
	wf := f.addWorkflow(t, "tenant-1", "pausable", map[string]interface{}{
		"triggerType": "new_lead",
	})
	_, err := f.registry.SetStatus("tenant-1", wf.ID, workflow.StatusPaused)
	require.NoError(t, err)

	ids := matchedIDs(t, f, trigger.Event{Type: trigger.EventNewLead, TenantID: "tenant-1"})
	assert.Empty(t, ids)
}

func TestMatchIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	f.addWorkflow(t, "tenant-1", "mine", map[string]interface{}{"triggerType": "new_lead"})

	ids := matchedIDs(t, f, trigger.Event{Type: trigger.EventNewLead, TenantID: "tenant-2"})
	assert.Empty(t, ids)
}

func TestMatchStageChange(t *testing.T) {
	f := newFixture(t)
	wf := f.addWorkflow(t, "tenant-1", "qualified watcher", map[string]interface{}{
		"triggerType": "stage_change", "fromStage": "New", "toStage": "Qualified",
	})

	ids := matchedIDs(t, f, trigger.Event{
		Type: trigger.EventStageChange, TenantID: "tenant-1",
		FromStage: "New", ToStage: "Qualified",
	})
	assert.Equal(t, []string{wf.ID}, ids)

	ids = matchedIDs(t, f, trigger.Event{
		Type: trigger.EventStageChange, TenantID: "tenant-1",
		FromStage: "Contacted", ToStage: "Qualified",
	})
	assert.Empty(t, ids)
}

func TestMatchMessageKeywords(t *testing.T) {
	f := newFixture(t)
	wf := f.addWorkflow(t, "tenant-1", "pricing bot", map[string]interface{}{
		"triggerType": "message_received",
		"channel":     "whatsapp",
		"keywords":    []interface{}{"pricing", "quote"},
	})

	match := func(channel, content string) []string {
		return matchedIDs(t, f, trigger.Event{
			Type: trigger.EventMessageReceived, TenantID: "tenant-1",
			Message: map[string]interface{}{"channel": channel, "content": content},
		})
	}

	// Keyword matching is case-insensitive
	assert.Equal(t, []string{wf.ID}, match("whatsapp", "Can I get a QUOTE?"))
	assert.Empty(t, match("whatsapp", "hello there"))
	assert.Empty(t, match("email", "send me pricing"))
}

func TestMatchWebhook(t *testing.T) {
	f := newFixture(t)
	wf := f.addWorkflow(t, "tenant-1", "form hook", map[string]interface{}{
		"triggerType": "webhook", "path": "/forms/contact", "method": "POST",
	})

	ids := matchedIDs(t, f, trigger.Event{
		Type: trigger.EventWebhook, TenantID: "tenant-1",
		Path: "/forms/contact", Method: "post",
	})
	assert.Equal(t, []string{wf.ID}, ids)

	ids = matchedIDs(t, f, trigger.Event{
		Type: trigger.EventWebhook, TenantID: "tenant-1",
		Path: "/forms/contact", Method: "GET",
	})
	assert.Empty(t, ids)

	ids = matchedIDs(t, f, trigger.Event{
		Type: trigger.EventWebhook, TenantID: "tenant-1",
		Path: "/forms/other", Method: "POST",
	})
	assert.Empty(t, ids)
}

func TestMatchTimerTargetsOneWorkflow(t *testing.T) {
	f := newFixture(t)
	wf1 := f.addWorkflow(t, "tenant-1", "daily digest", map[string]interface{}{
		"triggerType": "time_based", "schedule": "0 9 * * *",
	})
	f.addWorkflow(t, "tenant-1", "weekly digest", map[string]interface{}{
		"triggerType": "time_based", "schedule": "0 9 * * 1",
	})

	ids := matchedIDs(t, f, trigger.Event{
		Type: trigger.EventTimerTick, TenantID: "tenant-1", WorkflowID: wf1.ID,
	})
	assert.Equal(t, []string{wf1.ID}, ids)
}

func TestOnEventStartsOneRunPerMatch(t *testing.T) {
	f := newFixture(t)
	wf1 := f.addWorkflow(t, "tenant-1", "one", map[string]interface{}{"triggerType": "new_lead"})
	wf2 := f.addWorkflow(t, "tenant-1", "two", map[string]interface{}{"triggerType": "new_lead"})

	runIDs, err := f.service.OnEvent(context.Background(), trigger.Event{
		Type:     trigger.EventNewLead,
		TenantID: "tenant-1",
		Lead:     map[string]interface{}{"id": "lead-1", "source": "website"},
		Client:   map[string]interface{}{"name": "Ana", "phone": "+5511999990000"},
	})
	require.NoError(t, err)
	require.Len(t, runIDs, 2)

	for _, id := range runIDs {
		run, err := f.engine.GetRun(id)
		require.NoError(t, err)
		assert.Equal(t, engine.RunCompleted, run.Status)
		assert.Equal(t, "lead-1", run.TriggerPayload["lead"].(map[string]interface{})["id"])
	}

	// Each match bumps the workflow's execution counter
	for _, wfID := range []string{wf1.ID, wf2.ID} {
		got, err := f.registry.Get("tenant-1", wfID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, got.ExecutionCount)
		assert.NotNil(t, got.LastExecutedAt)
	}

	assert.Len(t, f.exec.calls, 2)
}

func TestOnEventNoMatchIsNotAnError(t *testing.T) {
	f := newFixture(t)

	runIDs, err := f.service.OnEvent(context.Background(), trigger.Event{
		Type: trigger.EventNewLead, TenantID: "tenant-1",
	})
	require.NoError(t, err)
	assert.Empty(t, runIDs)
}

func TestOnEventRejectsIncompleteEvents(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.OnEvent(context.Background(), trigger.Event{TenantID: "tenant-1"})
	assert.Error(t, err)

	_, err = f.service.OnEvent(context.Background(), trigger.Event{Type: trigger.EventNewLead})
	assert.Error(t, err)
}

func TestEventPayloadShapes(t *testing.T) {
	ev := trigger.Event{
		Type:      trigger.EventStageChange,
		TenantID:  "tenant-1",
		EventID:   "ev-9",
		FromStage: "New",
		ToStage:   "Qualified",
		Lead:      map[string]interface{}{"id": "lead-1"},
	}
	payload := ev.Payload()

	assert.Equal(t, "stage_change", payload["trigger"].(map[string]interface{})["type"])
	assert.Equal(t, "ev-9", payload["event_id"])
	assert.Equal(t, map[string]interface{}{"from": "New", "to": "Qualified"}, payload["stage_change"])

	hook := trigger.Event{
		Type: trigger.EventWebhook, TenantID: "tenant-1",
		Path: "/forms/contact", Method: "POST",
		Body: map[string]interface{}{"email": "ana@example.com"},
	}
	wh := hook.Payload()["webhook"].(map[string]interface{})
	assert.Equal(t, "/forms/contact", wh["path"])
	assert.Equal(t, "ana@example.com", wh["body"].(map[string]interface{})["email"])
}

func TestSchedulerRegisterValidatesExpression(t *testing.T) {
	f := newFixture(t)
	store := storage.NewMemoryScheduleStore()
	sched := trigger.NewCronScheduler(store, f.service, nil)

	err := sched.Register("tenant-1", "wf-1", "not a cron line")
	assert.Error(t, err)

	schedules, err := store.ListSchedules()
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestSchedulerRegisterPersists(t *testing.T) {
	f := newFixture(t)
	store := storage.NewMemoryScheduleStore()
	sched := trigger.NewCronScheduler(store, f.service, nil)

	require.NoError(t, sched.Register("tenant-1", "wf-1", "*/5 * * * *"))

	// Re-registering replaces the previous schedule
	require.NoError(t, sched.Register("tenant-1", "wf-1", "0 9 * * *"))

	schedules, err := store.ListSchedules()
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "0 9 * * *", schedules[0].Expression)

	require.NoError(t, sched.Unregister("tenant-1", "wf-1"))
	schedules, err = store.ListSchedules()
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestSchedulerRebuildsFromStore(t *testing.T) {
	f := newFixture(t)
	store := storage.NewMemoryScheduleStore()
	require.NoError(t, store.SaveSchedule(trigger.Schedule{
		TenantID: "tenant-1", WorkflowID: "wf-1", Expression: "0 9 * * *",
	}))
	// An invalid stored expression is skipped, not fatal
	require.NoError(t, store.SaveSchedule(trigger.Schedule{
		TenantID: "tenant-1", WorkflowID: "wf-2", Expression: "garbage",
	}))

	sched := trigger.NewCronScheduler(store, f.service, nil)
	require.NoError(t, sched.Start())
	sched.Stop()
}
