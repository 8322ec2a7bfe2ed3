// Package executor provides the pluggable per-node-type handlers the
// engine invokes for action and ai-step nodes, plus the narrow
// collaborator interfaces their side effects go through.
package executor

import (
	"context"
	"fmt"

	"github.com/pipeboard/automation/pkg/graph"
)

// Error kinds
const (
	ErrKindConfig       = "config"
	ErrKindCollaborator = "collaborator"
	ErrKindTimeout      = "timeout"
	ErrKindUnknownType  = "unknown_action_type"
)

// ExecutorError is how a step failure surfaces. It is recorded on the
// step and the run; it never propagates past the engine boundary.
type ExecutorError struct {
	// Kind classifies the failure
	Kind string `json:"kind"`

	// Message describes the failure
	Message string `json:"message"`
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds an ExecutorError
func Errorf(kind, format string, args ...interface{}) *ExecutorError {
	return &ExecutorError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Request carries one step invocation
type Request struct {
	// TenantID owning the run
	TenantID string

	// Node is the graph node being executed
	Node graph.Node

	// Config is the node's decoded action configuration
	Config *graph.ActionConfig

	// Context is the run context at the time of the step
	Context map[string]interface{}
}

// StepExecutor executes one node type. On success it returns a patch
// merged into the run context for downstream nodes.
type StepExecutor interface {
	// Execute performs the step's side effect
	Execute(ctx context.Context, req Request) (map[string]interface{}, error)
}

// Messenger is the messaging collaborator (WhatsApp, email, SMS)
type Messenger interface {
	// SendMessage delivers a rendered message on a channel
	SendMessage(ctx context.Context, msg OutboundMessage) error
}

// OutboundMessage is one message to deliver
type OutboundMessage struct {
	TenantID string `json:"tenant_id"`
	Channel  string `json:"channel"` // "whatsapp", "email", "sms"
	To       string `json:"to"`
	Subject  string `json:"subject,omitempty"`
	Body     string `json:"body"`
}

// Board is the kanban/sector collaborator
type Board interface {
	// MoveStage moves a lead to a pipeline stage
	MoveStage(ctx context.Context, tenantID, leadID, targetStage string) error

	// MoveSector moves a client to a service sector
	MoveSector(ctx context.Context, tenantID, clientID, targetSector string) error
}

// AIClient is the AI collaborator behind chatbot, classification and
// agent steps
type AIClient interface {
	// Complete produces a free-form response for a prompt
	Complete(ctx context.Context, prompt string, runContext map[string]interface{}) (string, error)

	// Classify picks one of the categories for the given text
	Classify(ctx context.Context, prompt string, categories []string, text string) (string, error)
}
