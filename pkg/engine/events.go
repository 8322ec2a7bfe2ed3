package engine

import (
	"sync"
	"time"
)

// Event types published while a run executes
const (
	EventRunStarted   = "run.started"
	EventRunSuspended = "run.suspended"
	EventRunResumed   = "run.resumed"
	EventRunFinished  = "run.finished"
	EventStepStarted  = "step.started"
	EventStepFinished = "step.finished"
)

// Event is one live notification about a run, feeding the websocket and
// SSE execution-log views.
type Event struct {
	// Type of the event
	Type string `json:"type"`

	// Timestamp of the event
	Timestamp time.Time `json:"timestamp"`

	// TenantID, WorkflowID and RunID locate the run
	TenantID   string `json:"tenant_id"`
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`

	// NodeID is set for step events
	NodeID string `json:"node_id,omitempty"`

	// Status is the run or step status after the event
	Status string `json:"status,omitempty"`

	// Data carries event-specific details
	Data map[string]interface{} `json:"data,omitempty"`
}

// eventBroker fans run events out to per-run subscribers. Slow
// subscribers drop events rather than stall the walk.
type eventBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func newEventBroker() *eventBroker {
	return &eventBroker{subs: make(map[string]map[chan Event]struct{})}
}

func (b *eventBroker) subscribe(runID string) (<-chan Event, func()) {
	ch := make(chan Event, 64)

	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[chan Event]struct{})
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[runID]; ok {
			if _, present := set[ch]; present {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, runID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *eventBroker) publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[evt.RunID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
