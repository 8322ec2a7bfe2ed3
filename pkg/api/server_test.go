package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeboard/automation/pkg/api"
	"github.com/pipeboard/automation/pkg/config"
	"github.com/pipeboard/automation/pkg/engine"
	"github.com/pipeboard/automation/pkg/executor"
	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/storage"
	"github.com/pipeboard/automation/pkg/trigger"
	"github.com/pipeboard/automation/pkg/workflow"
)

type nullMessenger struct{}

func (nullMessenger) SendMessage(ctx context.Context, msg executor.OutboundMessage) error {
	return nil
}

type nullBoard struct{}

func (nullBoard) MoveStage(ctx context.Context, tenantID, leadID, targetStage string) error {
	return nil
}

func (nullBoard) MoveSector(ctx context.Context, tenantID, clientID, targetSector string) error {
	return nil
}

func newTestServer(t *testing.T) *api.Server {
	t.Helper()

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())

	registry := workflow.NewRegistry(provider.GetWorkflowStore())
	eng := engine.New(engine.Options{
		RunStore:          provider.GetRunStore(),
		ContinuationStore: provider.GetContinuationStore(),
		GraphProvider:     registry,
		Executors: executor.NewBuiltinRegistry(executor.Collaborators{
			Messenger: nullMessenger{},
			Board:     nullBoard{},
		}),
	})
	triggers := trigger.NewService(registry, eng, nil)
	scheduler := trigger.NewCronScheduler(provider.GetScheduleStore(), triggers, nil)

	return api.NewServer(config.DefaultConfig(), registry, eng, triggers, scheduler, nil)
}

func doRequest(t *testing.T, srv *api.Server, method, path, tenant string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if tenant != "" {
		req.Header.Set(api.TenantHeader, tenant)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func builderGraph() graph.Graph {
	return graph.Graph{
		Nodes: []graph.Node{
			{ID: "t1", Type: graph.KindTrigger, Data: graph.NodeData{
				Config: map[string]interface{}{"triggerType": "new_lead", "source": "website"},
			}},
			{ID: "a1", Type: graph.KindAction, Data: graph.NodeData{
				Config: map[string]interface{}{
					"actionType": "send_message",
					"channel":    "whatsapp",
					"message":    "Hi {{client.name}}",
				},
			}},
		},
		Connections: []graph.Connection{
			{ID: "e1", Source: "t1", Target: "a1"},
		},
	}
}

// createActive creates a workflow, saves a graph and activates it
func createActive(t *testing.T, srv *api.Server, tenant string, g graph.Graph) workflow.Workflow {
	t.Helper()

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows", tenant,
		map[string]string{"name": "test flow"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var wf workflow.Workflow
	decode(t, rec, &wf)

	rec = doRequest(t, srv, http.MethodPut, "/api/v1/workflows/"+wf.ID+"/graph", tenant,
		map[string]interface{}{"workflow_data": g, "updated_at": wf.UpdatedAt})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &wf)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/status", tenant,
		map[string]string{"status": "active"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &wf)
	require.Equal(t, workflow.StatusActive, wf.Status)
	return wf
}

func TestHealthNeedsNoTenant(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScopedRoutesRequireTenantHeader(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/workflows", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), api.TenantHeader)
}

func TestWorkflowCRUD(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows", "tenant-1",
		map[string]string{"name": "lead flow"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var wf workflow.Workflow
	decode(t, rec, &wf)
	assert.Equal(t, "lead flow", wf.Name)
	assert.Equal(t, workflow.StatusDraft, wf.Status)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/workflows", "tenant-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []workflow.Workflow
	decode(t, rec, &list)
	require.Len(t, list, 1)

	// Another tenant sees nothing
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/workflows", "tenant-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = nil
	decode(t, rec, &list)
	assert.Empty(t, list)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/workflows/"+wf.ID, "tenant-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/workflows/"+wf.ID, "tenant-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/workflows/"+wf.ID, "tenant-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateWorkflowRequiresName(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows", "tenant-1",
		map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateWorkflowFromTemplate(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows", "tenant-1",
		map[string]string{"name": "from template", "template": "welcome-lead"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var wf workflow.Workflow
	decode(t, rec, &wf)
	assert.NotEmpty(t, wf.Graph.Nodes)
}

func TestListTemplates(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/templates", "tenant-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Templates []string `json:"templates"`
	}
	decode(t, rec, &resp)
	assert.Contains(t, resp.Templates, "welcome-lead")
}

func TestSaveGraphConflictAndValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows", "tenant-1",
		map[string]string{"name": "editable"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var wf workflow.Workflow
	decode(t, rec, &wf)

	rec = doRequest(t, srv, http.MethodPut, "/api/v1/workflows/"+wf.ID+"/graph", "tenant-1",
		map[string]interface{}{"workflow_data": builderGraph(), "updated_at": wf.UpdatedAt})
	require.Equal(t, http.StatusOK, rec.Code)
	var saved workflow.Workflow
	decode(t, rec, &saved)
	assert.Equal(t, 1, saved.GraphVersion)

	// Replaying with the stale timestamp loses the race
	rec = doRequest(t, srv, http.MethodPut, "/api/v1/workflows/"+wf.ID+"/graph", "tenant-1",
		map[string]interface{}{"workflow_data": builderGraph(), "updated_at": wf.UpdatedAt})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// A graph without a trigger is rejected with the validation list
	bad := builderGraph()
	bad.Nodes = bad.Nodes[1:]
	bad.Connections = nil
	rec = doRequest(t, srv, http.MethodPut, "/api/v1/workflows/"+wf.ID+"/graph", "tenant-1",
		map[string]interface{}{"workflow_data": bad, "updated_at": saved.UpdatedAt})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Error  string                  `json:"error"`
		Errors []graph.ValidationError `json:"errors"`
	}
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Errors)
}

func TestStatusTransitions(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows", "tenant-1",
		map[string]string{"name": "status flow"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var wf workflow.Workflow
	decode(t, rec, &wf)

	// A draft with no graph cannot go active
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/status", "tenant-1",
		map[string]string{"status": "active"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/status", "tenant-1",
		map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPut, "/api/v1/workflows/"+wf.ID+"/graph", "tenant-1",
		map[string]interface{}{"workflow_data": builderGraph(), "updated_at": wf.UpdatedAt})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &wf)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/status", "tenant-1",
		map[string]string{"status": "active"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &wf)
	assert.Equal(t, workflow.StatusActive, wf.Status)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/status", "tenant-1",
		map[string]string{"status": "paused"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &wf)
	assert.Equal(t, workflow.StatusPaused, wf.Status)
}

func TestEventIngestionStartsRuns(t *testing.T) {
	srv := newTestServer(t)
	wf := createActive(t, srv, "tenant-1", builderGraph())

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/events", "tenant-1", map[string]interface{}{
		"type":   "new_lead",
		"lead":   map[string]interface{}{"id": "lead-1", "source": "website"},
		"client": map[string]interface{}{"name": "Ana", "phone": "+5511999990000"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		RunIDs []string `json:"run_ids"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.RunIDs, 1)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/runs/"+resp.RunIDs[0], "tenant-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var run engine.Run
	decode(t, rec, &run)
	assert.Equal(t, wf.ID, run.WorkflowID)
	assert.Equal(t, engine.RunCompleted, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, "a1", run.Steps[0].NodeID)

	// Runs are tenant-scoped
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/runs/"+resp.RunIDs[0], "tenant-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/runs?workflow_id="+wf.ID, "tenant-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []engine.Run
	decode(t, rec, &runs)
	assert.Len(t, runs, 1)
}

func TestEventWithNoMatchReturnsEmptyRunList(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/events", "tenant-1", map[string]interface{}{
		"type": "new_lead",
		"lead": map[string]interface{}{"source": "website"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"run_ids":[]}`, rec.Body.String())
}

func TestInboundWebhook(t *testing.T) {
	srv := newTestServer(t)

	g := builderGraph()
	g.Nodes[0].Data.Config = map[string]interface{}{
		"triggerType": "webhook", "path": "/forms/contact", "method": "POST",
	}
	createActive(t, srv, "tenant-1", g)

	rec := doRequest(t, srv, http.MethodPost, "/hooks/forms/contact", "tenant-1",
		map[string]interface{}{"email": "ana@example.com"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		RunIDs []string `json:"run_ids"`
	}
	decode(t, rec, &resp)
	assert.Len(t, resp.RunIDs, 1)

	// Wrong method does not fire the trigger
	rec = doRequest(t, srv, http.MethodGet, "/hooks/forms/contact", "tenant-1", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"run_ids":[]}`, rec.Body.String())

	// The scoping header is still required outside /api/v1
	rec = doRequest(t, srv, http.MethodPost, "/hooks/forms/contact", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRun(t *testing.T) {
	srv := newTestServer(t)

	g := builderGraph()
	g.Nodes = append(g.Nodes, graph.Node{
		ID: "wait", Type: graph.KindDelay,
		Data: graph.NodeData{Config: map[string]interface{}{"duration": 1, "unit": "hours"}},
	})
	g.Connections = append(g.Connections, graph.Connection{ID: "e2", Source: "a1", Target: "wait"})
	createActive(t, srv, "tenant-1", g)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/events", "tenant-1", map[string]interface{}{
		"type": "new_lead",
		"lead": map[string]interface{}{"id": "lead-1", "source": "website"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		RunIDs []string `json:"run_ids"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.RunIDs, 1)
	runID := resp.RunIDs[0]

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/runs/"+runID+"/cancel", "tenant-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var run engine.Run
	decode(t, rec, &run)
	assert.Equal(t, engine.RunCancelled, run.Status)
	require.NotNil(t, run.CompletedAt)

	// A second cancel hits a terminal run
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/runs/"+runID+"/cancel", "tenant-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelUnknownRun(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs/nope/cancel", "tenant-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/workflows", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTimeBasedActivationRegistersSchedule(t *testing.T) {
	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())

	registry := workflow.NewRegistry(provider.GetWorkflowStore())
	eng := engine.New(engine.Options{
		RunStore:          provider.GetRunStore(),
		ContinuationStore: provider.GetContinuationStore(),
		GraphProvider:     registry,
		Executors:         executor.NewBuiltinRegistry(executor.Collaborators{Messenger: nullMessenger{}}),
	})
	triggers := trigger.NewService(registry, eng, nil)
	scheduler := trigger.NewCronScheduler(provider.GetScheduleStore(), triggers, nil)
	srv := api.NewServer(config.DefaultConfig(), registry, eng, triggers, scheduler, nil)

	g := builderGraph()
	g.Nodes[0].Data.Config = map[string]interface{}{
		"triggerType": "time_based", "schedule": "0 9 * * *",
	}
	wf := createActive(t, srv, "tenant-1", g)

	schedules, err := provider.GetScheduleStore().ListSchedules()
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, wf.ID, schedules[0].WorkflowID)
	assert.Equal(t, "0 9 * * *", schedules[0].Expression)

	// Pausing unregisters
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/status", "tenant-1",
		map[string]string{"status": "paused"})
	require.Equal(t, http.StatusOK, rec.Code)

	schedules, err = provider.GetScheduleStore().ListSchedules()
	require.NoError(t, err)
	assert.Empty(t, schedules)
}
