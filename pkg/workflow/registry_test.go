package workflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/storage"
	"github.com/pipeboard/automation/pkg/workflow"
)

func validGraph() graph.Graph {
	return graph.Graph{
		Nodes: []graph.Node{
			{ID: "t1", Type: graph.KindTrigger, Data: graph.NodeData{
				Config: map[string]interface{}{"triggerType": "new_lead"},
			}},
			{ID: "a1", Type: graph.KindAction, Data: graph.NodeData{
				Config: map[string]interface{}{
					"actionType":  "move_stage",
					"targetStage": "Qualified",
				},
			}},
		},
		Connections: []graph.Connection{
			{ID: "e1", Source: "t1", Target: "a1"},
		},
	}
}

func newTestRegistry() workflow.Registry {
	return workflow.NewRegistry(storage.NewMemoryWorkflowStore())
}

func TestCreateDraft(t *testing.T) {
	registry := newTestRegistry()

	wf, err := registry.Create("tenant-1", "Welcome flow", "")
	require.NoError(t, err)

	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, "tenant-1", wf.TenantID)
	assert.Equal(t, workflow.StatusDraft, wf.Status)
	assert.Equal(t, 0, wf.GraphVersion)
	assert.Empty(t, wf.Graph.Nodes)
}

func TestCreateFromTemplate(t *testing.T) {
	registry := newTestRegistry()

	wf, err := registry.Create("tenant-1", "Welcome flow", "welcome-lead")
	require.NoError(t, err)

	assert.NotEmpty(t, wf.Graph.Nodes)
	_, errs := graph.Validate(wf.Graph)
	assert.Empty(t, errs)

	_, err = registry.Create("tenant-1", "Broken", "no-such-template")
	assert.Error(t, err)
}

func TestTemplateNames(t *testing.T) {
	registry := newTestRegistry()

	names := registry.Templates()
	assert.Contains(t, names, "welcome-lead")
	assert.Contains(t, names, "inbound-triage")
}

func TestSaveGraphVersioning(t *testing.T) {
	registry := newTestRegistry()

	wf, err := registry.Create("tenant-1", "Flow", "")
	require.NoError(t, err)

	g1 := validGraph()
	wf, validationErrs, err := registry.SaveGraph("tenant-1", wf.ID, g1, wf.UpdatedAt)
	require.NoError(t, err)
	require.Empty(t, validationErrs)
	assert.Equal(t, 1, wf.GraphVersion)

	g2 := validGraph()
	g2.Nodes[1].Data.Config["targetStage"] = "Won"
	wf, _, err = registry.SaveGraph("tenant-1", wf.ID, g2, wf.UpdatedAt)
	require.NoError(t, err)
	assert.Equal(t, 2, wf.GraphVersion)

	// Both versions stay retrievable for pinned runs
	v1, err := registry.PinnedGraph("tenant-1", wf.ID, 1)
	require.NoError(t, err)
	cfg := v1.Config("a1").(*graph.ActionConfig)
	assert.Equal(t, "Qualified", cfg.TargetStage)

	v2, err := registry.PinnedGraph("tenant-1", wf.ID, 2)
	require.NoError(t, err)
	cfg = v2.Config("a1").(*graph.ActionConfig)
	assert.Equal(t, "Won", cfg.TargetStage)
}

func TestSaveGraphConflict(t *testing.T) {
	registry := newTestRegistry()

	wf, err := registry.Create("tenant-1", "Flow", "")
	require.NoError(t, err)

	stale := wf.UpdatedAt.Add(-time.Minute)
	_, _, err = registry.SaveGraph("tenant-1", wf.ID, validGraph(), stale)
	assert.ErrorIs(t, err, workflow.ErrConflict)
}

func TestSaveGraphInvalid(t *testing.T) {
	registry := newTestRegistry()

	wf, err := registry.Create("tenant-1", "Flow", "")
	require.NoError(t, err)

	g := validGraph()
	g.Nodes = g.Nodes[1:] // no trigger

	_, validationErrs, err := registry.SaveGraph("tenant-1", wf.ID, g, wf.UpdatedAt)
	assert.ErrorIs(t, err, workflow.ErrInvalidGraph)
	assert.NotEmpty(t, validationErrs)
}

func TestSetStatus(t *testing.T) {
	registry := newTestRegistry()

	wf, err := registry.Create("tenant-1", "Flow", "")
	require.NoError(t, err)

	// An empty graph cannot be activated
	_, err = registry.SetStatus("tenant-1", wf.ID, workflow.StatusActive)
	assert.ErrorIs(t, err, workflow.ErrInvalidGraph)

	wf, _, err = registry.SaveGraph("tenant-1", wf.ID, validGraph(), wf.UpdatedAt)
	require.NoError(t, err)

	wf, err = registry.SetStatus("tenant-1", wf.ID, workflow.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusActive, wf.Status)

	wf, err = registry.SetStatus("tenant-1", wf.ID, workflow.StatusPaused)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPaused, wf.Status)

	_, err = registry.SetStatus("tenant-1", wf.ID, "archived")
	assert.ErrorIs(t, err, workflow.ErrInvalidStatus)
}

func TestActiveGraph(t *testing.T) {
	registry := newTestRegistry()

	wf, err := registry.Create("tenant-1", "Flow", "")
	require.NoError(t, err)
	wf, _, err = registry.SaveGraph("tenant-1", wf.ID, validGraph(), wf.UpdatedAt)
	require.NoError(t, err)

	_, _, err = registry.ActiveGraph("tenant-1", wf.ID)
	assert.ErrorIs(t, err, workflow.ErrNotActive)

	_, err = registry.SetStatus("tenant-1", wf.ID, workflow.StatusActive)
	require.NoError(t, err)

	got, vg, err := registry.ActiveGraph("tenant-1", wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.ID)
	assert.Equal(t, "t1", vg.Trigger.ID)
}

func TestRecordExecution(t *testing.T) {
	registry := newTestRegistry()

	wf, err := registry.Create("tenant-1", "Flow", "")
	require.NoError(t, err)

	at := time.Now().UTC()
	require.NoError(t, registry.RecordExecution("tenant-1", wf.ID, at))

	got, err := registry.Get("tenant-1", wf.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ExecutionCount)
	require.NotNil(t, got.LastExecutedAt)
	assert.True(t, got.LastExecutedAt.Equal(at))
}

func TestTenantIsolation(t *testing.T) {
	registry := newTestRegistry()

	wf, err := registry.Create("tenant-1", "Flow", "")
	require.NoError(t, err)

	_, err = registry.Get("tenant-2", wf.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	list, err := registry.List("tenant-2")
	require.NoError(t, err)
	assert.Empty(t, list)
}
