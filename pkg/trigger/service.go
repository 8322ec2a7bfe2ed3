package trigger

import (
	"context"
	"fmt"

	"github.com/pipeboard/automation/pkg/engine"
	"github.com/pipeboard/automation/pkg/logging"
	"github.com/pipeboard/automation/pkg/workflow"
)

// Service receives domain events and starts runs for every match.
// Matching is at-least-once: duplicate deliveries of the same event
// spawn duplicate runs.
type Service struct {
	matcher  *Matcher
	registry workflow.Registry
	engine   engine.Engine
	logger   logging.Logger
}

// NewService creates a trigger service
func NewService(registry workflow.Registry, eng engine.Engine, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Service{
		matcher:  NewMatcher(registry),
		registry: registry,
		engine:   eng,
		logger:   logger,
	}
}

// OnEvent matches an event and starts one run per matching workflow.
// It returns the started run ids. A failure starting one run does not
// stop the others.
func (s *Service) OnEvent(ctx context.Context, ev Event) ([]string, error) {
	if ev.Type == "" {
		return nil, fmt.Errorf("event has no type")
	}
	if ev.TenantID == "" {
		return nil, fmt.Errorf("event has no tenant id")
	}

	candidates, err := s.matcher.Match(ev)
	if err != nil {
		return nil, err
	}

	payload := ev.Payload()

	var runIDs []string
	for _, c := range candidates {
		if err := s.registry.RecordExecution(c.Workflow.TenantID, c.Workflow.ID, ev.OccurredAt); err != nil {
			s.logger.Warn("failed to record execution",
				logField("workflow_id", c.Workflow.ID), logField("error", err.Error()))
		}

		runID, err := s.engine.Start(ctx, engine.StartRequest{
			TenantID:     c.Workflow.TenantID,
			WorkflowID:   c.Workflow.ID,
			GraphVersion: c.Workflow.GraphVersion,
			Graph:        c.Graph,
			Payload:      payload,
		})
		if err != nil {
			s.logger.Error("failed to start run",
				logField("workflow_id", c.Workflow.ID), logField("error", err.Error()))
			continue
		}
		runIDs = append(runIDs, runID)
	}

	s.logger.LogSystemEvent("event processed", map[string]interface{}{
		"type":    ev.Type,
		"tenant":  ev.TenantID,
		"matched": len(candidates),
		"runs":    len(runIDs),
	})
	return runIDs, nil
}

func logField(key string, value interface{}) logging.Field {
	return logging.Field{Key: key, Value: value}
}
