package trigger

import (
	"fmt"
	"strings"

	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/workflow"
)

// Candidate is one workflow an event should start a run for
type Candidate struct {
	Workflow workflow.Workflow
	Graph    *graph.ValidGraph
	Config   *graph.TriggerConfig
}

// Matcher selects the active workflows whose trigger configuration
// matches a domain event.
type Matcher struct {
	registry workflow.Registry
}

// NewMatcher creates a matcher over the workflow registry
func NewMatcher(registry workflow.Registry) *Matcher {
	return &Matcher{registry: registry}
}

// Match returns every active workflow the event fires. Each candidate
// spawns its own independent run.
func (m *Matcher) Match(ev Event) ([]Candidate, error) {
	workflows, err := m.registry.List(ev.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	var candidates []Candidate
	for _, wf := range workflows {
		if wf.Status != workflow.StatusActive {
			continue
		}

		vg, errs := graph.Validate(wf.Graph)
		if len(errs) > 0 {
			// Active workflows hold validated graphs; skip rather than
			// fail the whole event if one record is corrupt.
			continue
		}

		cfg, ok := vg.Config(vg.Trigger.ID).(*graph.TriggerConfig)
		if !ok || cfg.TriggerType != ev.Type {
			continue
		}

		if matches(cfg, ev, wf.ID) {
			candidates = append(candidates, Candidate{Workflow: wf, Graph: vg, Config: cfg})
		}
	}
	return candidates, nil
}

// matches applies the per-trigger-type filter rules. An unset filter
// matches anything.
func matches(cfg *graph.TriggerConfig, ev Event, workflowID string) bool {
	switch ev.Type {
	case EventNewLead:
		if cfg.Source == "" {
			return true
		}
		source, _ := ev.Lead["source"].(string)
		return cfg.Source == source

	case EventStageChange:
		if cfg.FromStage != "" && cfg.FromStage != ev.FromStage {
			return false
		}
		if cfg.ToStage != "" && cfg.ToStage != ev.ToStage {
			return false
		}
		return true

	case EventMessageReceived:
		channel, _ := ev.Message["channel"].(string)
		if cfg.Channel != "" && cfg.Channel != channel {
			return false
		}
		if len(cfg.Keywords) == 0 {
			return true
		}
		content, _ := ev.Message["content"].(string)
		content = strings.ToLower(content)
		for _, kw := range cfg.Keywords {
			if kw != "" && strings.Contains(content, strings.ToLower(kw)) {
				return true
			}
		}
		return false

	case EventWebhook:
		if cfg.Path != ev.Path {
			return false
		}
		return cfg.Method == "" || strings.EqualFold(cfg.Method, ev.Method)

	case EventTimerTick:
		// Timer ticks target one workflow; the scheduler guarantees at
		// most one tick per scheduled instant per workflow.
		return ev.WorkflowID == workflowID

	default:
		return false
	}
}
