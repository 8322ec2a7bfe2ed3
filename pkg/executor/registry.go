package executor

import (
	"sync"

	"github.com/pipeboard/automation/pkg/graph"
)

// Registry maps action types to executors. New executor kinds can be
// registered at wiring time without engine changes.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]StepExecutor
}

// NewRegistry creates an empty executor registry
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]StepExecutor)}
}

// Register adds or replaces the executor for an action type
func (r *Registry) Register(actionType string, exec StepExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[actionType] = exec
}

// Get returns the executor for an action type
func (r *Registry) Get(actionType string) (StepExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[actionType]
	return exec, ok
}

// Types lists the registered action types
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}

// Collaborators bundles the external systems the built-in executors call
type Collaborators struct {
	Messenger Messenger
	Board     Board
	AI        AIClient
}

// NewBuiltinRegistry creates a registry with every built-in executor
// wired to the given collaborators.
func NewBuiltinRegistry(c Collaborators) *Registry {
	r := NewRegistry()
	r.Register(graph.ActionSendMessage, NewSendMessageExecutor(c.Messenger))
	r.Register(graph.ActionMoveStage, NewMoveStageExecutor(c.Board))
	r.Register(graph.ActionMoveSector, NewMoveSectorExecutor(c.Board))
	r.Register(graph.ActionWebhook, NewWebhookExecutor())
	r.Register(graph.ActionChatbotResponse, NewChatbotExecutor(c.AI))
	r.Register(graph.ActionTextClassification, NewClassificationExecutor(c.AI, c.Board, c.Messenger))
	r.Register(graph.ActionAgentResponse, NewAgentExecutor(c.AI))
	return r
}
