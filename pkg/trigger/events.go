// Package trigger turns domain events into workflow runs: it matches
// events against active workflows' trigger configuration and starts one
// independent run per match.
package trigger

import (
	"time"
)

// Event types mirror the trigger types they can fire
const (
	EventNewLead         = "new_lead"
	EventStageChange     = "stage_change"
	EventMessageReceived = "message_received"
	EventWebhook         = "webhook"
	EventTimerTick       = "time_based"
)

// Event is a domain event delivered by the CRM, messaging or
// integration collaborators. Delivery is at-least-once; EventID is
// passed through into the run payload so callers can dedupe downstream,
// but the matcher itself does not.
type Event struct {
	// Type of the event
	Type string `json:"type"`

	// TenantID is the workspace the event belongs to
	TenantID string `json:"tenant_id"`

	// EventID optionally identifies the underlying occurrence
	EventID string `json:"event_id,omitempty"`

	// OccurredAt is when the event happened
	OccurredAt time.Time `json:"occurred_at,omitempty"`

	// Client and Lead are the CRM records involved, when applicable
	Client map[string]interface{} `json:"client,omitempty"`
	Lead   map[string]interface{} `json:"lead,omitempty"`

	// FromStage and ToStage describe a stage_change transition
	FromStage string `json:"from_stage,omitempty"`
	ToStage   string `json:"to_stage,omitempty"`

	// Message is the inbound message for message_received events; it
	// carries at least "channel" and "content"
	Message map[string]interface{} `json:"message,omitempty"`

	// Path, Method and Body describe an inbound webhook call
	Path   string                 `json:"path,omitempty"`
	Method string                 `json:"method,omitempty"`
	Body   map[string]interface{} `json:"body,omitempty"`

	// WorkflowID targets a single workflow for time_based ticks
	WorkflowID string `json:"workflow_id,omitempty"`
}

// Payload builds the run context a matched event starts a run with
func (e Event) Payload() map[string]interface{} {
	payload := map[string]interface{}{
		"trigger": map[string]interface{}{
			"type": e.Type,
		},
	}
	if e.EventID != "" {
		payload["event_id"] = e.EventID
	}
	if e.Client != nil {
		payload["client"] = e.Client
	}
	if e.Lead != nil {
		payload["lead"] = e.Lead
	}
	if e.Message != nil {
		payload["message"] = e.Message
	}
	if e.Type == EventStageChange {
		payload["stage_change"] = map[string]interface{}{
			"from": e.FromStage,
			"to":   e.ToStage,
		}
	}
	if e.Type == EventWebhook {
		payload["webhook"] = map[string]interface{}{
			"path":   e.Path,
			"method": e.Method,
			"body":   e.Body,
		}
	}
	return payload
}

// Schedule is a persisted time_based trigger registration, rebuilt into
// the cron scheduler on boot.
type Schedule struct {
	// TenantID and WorkflowID identify the workflow the tick targets
	TenantID   string `json:"tenant_id"`
	WorkflowID string `json:"workflow_id"`

	// Expression is the cron expression
	Expression string `json:"expression"`

	// CreatedAt is when the schedule was registered
	CreatedAt time.Time `json:"created_at"`
}

// ScheduleStore persists time_based trigger schedules
type ScheduleStore interface {
	// SaveSchedule stores or replaces a workflow's schedule
	SaveSchedule(s Schedule) error

	// DeleteSchedule removes a workflow's schedule
	DeleteSchedule(tenantID, workflowID string) error

	// ListSchedules returns every stored schedule
	ListSchedules() ([]Schedule, error)
}
