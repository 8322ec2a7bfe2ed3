package executor

import (
	"context"

	"github.com/pipeboard/automation/pkg/graph"
	"github.com/pipeboard/automation/pkg/utils"
)

// ChatbotExecutor produces a conversational reply with the AI
// collaborator and records it in the run context.
type ChatbotExecutor struct {
	ai AIClient
}

// NewChatbotExecutor creates a chatbot_response executor
func NewChatbotExecutor(ai AIClient) *ChatbotExecutor {
	return &ChatbotExecutor{ai: ai}
}

// Execute renders the prompt and asks the AI collaborator for a reply
func (e *ChatbotExecutor) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	if e.ai == nil {
		return nil, Errorf(ErrKindConfig, "no AI collaborator configured")
	}

	prompt, err := utils.ProcessTemplate(req.Config.Prompt, req.Context)
	if err != nil {
		return nil, Errorf(ErrKindConfig, "failed to render prompt: %v", err)
	}

	reply, err := e.ai.Complete(ctx, prompt, req.Context)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, Errorf(ErrKindTimeout, "chatbot_response timed out: %v", err)
		}
		return nil, Errorf(ErrKindCollaborator, "chatbot_response failed: %v", err)
	}

	return map[string]interface{}{
		"chatbot": map[string]interface{}{"response": reply},
	}, nil
}

// AgentExecutor runs an autonomous agent turn through the AI collaborator
type AgentExecutor struct {
	ai AIClient
}

// NewAgentExecutor creates an agent_response executor
func NewAgentExecutor(ai AIClient) *AgentExecutor {
	return &AgentExecutor{ai: ai}
}

// Execute renders the prompt and asks the AI collaborator for an agent turn
func (e *AgentExecutor) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	if e.ai == nil {
		return nil, Errorf(ErrKindConfig, "no AI collaborator configured")
	}

	prompt, err := utils.ProcessTemplate(req.Config.Prompt, req.Context)
	if err != nil {
		return nil, Errorf(ErrKindConfig, "failed to render prompt: %v", err)
	}

	reply, err := e.ai.Complete(ctx, prompt, req.Context)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, Errorf(ErrKindTimeout, "agent_response timed out: %v", err)
		}
		return nil, Errorf(ErrKindCollaborator, "agent_response failed: %v", err)
	}

	return map[string]interface{}{
		"agent": map[string]interface{}{"response": reply},
	}, nil
}

// ClassificationExecutor classifies the inbound message text and applies
// the configured category mapping. The mapped follow-up (move a sector,
// move a stage, send a message) happens inside the executor rather than
// through graph edges; the category is also patched into the context as
// classification.category so condition nodes can branch on it.
type ClassificationExecutor struct {
	ai        AIClient
	board     Board
	messenger Messenger
}

// NewClassificationExecutor creates a text_classification executor
func NewClassificationExecutor(ai AIClient, board Board, messenger Messenger) *ClassificationExecutor {
	return &ClassificationExecutor{ai: ai, board: board, messenger: messenger}
}

// Execute classifies the message and applies the category mapping
func (e *ClassificationExecutor) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	if e.ai == nil {
		return nil, Errorf(ErrKindConfig, "no AI collaborator configured")
	}

	text := stringAt(req.Context, "message.content")

	prompt, err := utils.ProcessTemplate(req.Config.Prompt, req.Context)
	if err != nil {
		return nil, Errorf(ErrKindConfig, "failed to render prompt: %v", err)
	}

	category, err := e.ai.Classify(ctx, prompt, req.Config.Categories, text)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, Errorf(ErrKindTimeout, "text_classification timed out: %v", err)
		}
		return nil, Errorf(ErrKindCollaborator, "text_classification failed: %v", err)
	}

	patch := map[string]interface{}{
		"classification": map[string]interface{}{"category": category},
	}

	route, ok := req.Config.CategoryMapping[category]
	if !ok {
		return patch, nil
	}

	switch route.Action {
	case graph.ActionMoveSector:
		if e.board == nil {
			return nil, Errorf(ErrKindConfig, "categoryMapping needs the board collaborator")
		}
		clientID := stringAt(req.Context, "client.id")
		if err := e.board.MoveSector(ctx, req.TenantID, clientID, route.TargetSector); err != nil {
			return nil, Errorf(ErrKindCollaborator, "mapped move_sector failed: %v", err)
		}
	case graph.ActionMoveStage:
		if e.board == nil {
			return nil, Errorf(ErrKindConfig, "categoryMapping needs the board collaborator")
		}
		leadID := stringAt(req.Context, "lead.id")
		if err := e.board.MoveStage(ctx, req.TenantID, leadID, route.TargetStage); err != nil {
			return nil, Errorf(ErrKindCollaborator, "mapped move_stage failed: %v", err)
		}
	case graph.ActionSendMessage:
		if e.messenger == nil {
			return nil, Errorf(ErrKindConfig, "categoryMapping needs the messaging collaborator")
		}
		body, err := utils.ProcessTemplate(route.Message, req.Context)
		if err != nil {
			return nil, Errorf(ErrKindConfig, "failed to render mapped message: %v", err)
		}
		msg := OutboundMessage{
			TenantID: req.TenantID,
			Channel:  stringAt(req.Context, "message.channel"),
			To:       stringAt(req.Context, "client.phone"),
			Body:     body,
		}
		if err := e.messenger.SendMessage(ctx, msg); err != nil {
			return nil, Errorf(ErrKindCollaborator, "mapped send_message failed: %v", err)
		}
	default:
		return nil, Errorf(ErrKindConfig, "categoryMapping has unknown action %q for category %q", route.Action, category)
	}

	return patch, nil
}
