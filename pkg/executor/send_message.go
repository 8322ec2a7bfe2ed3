package executor

import (
	"context"
	"fmt"

	"github.com/pipeboard/automation/pkg/utils"
)

// SendMessageExecutor delivers a templated message through the
// messaging collaborator.
type SendMessageExecutor struct {
	messenger Messenger
}

// NewSendMessageExecutor creates a send_message executor
func NewSendMessageExecutor(m Messenger) *SendMessageExecutor {
	return &SendMessageExecutor{messenger: m}
}

// Execute renders the configured message against the run context and
// hands it to the messenger.
func (e *SendMessageExecutor) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	if e.messenger == nil {
		return nil, Errorf(ErrKindConfig, "no messaging collaborator configured")
	}

	rendered, err := utils.ProcessTemplate(req.Config.Message, req.Context)
	if err != nil {
		return nil, Errorf(ErrKindConfig, "failed to render message: %v", err)
	}

	msg := OutboundMessage{
		TenantID: req.TenantID,
		Channel:  req.Config.Channel,
		To:       recipientFor(req.Config.Channel, req.Context),
		Body:     rendered,
	}

	if err := e.messenger.SendMessage(ctx, msg); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, Errorf(ErrKindTimeout, "send_message timed out: %v", err)
		}
		return nil, Errorf(ErrKindCollaborator, "send_message failed: %v", err)
	}

	return map[string]interface{}{
		"last_message": map[string]interface{}{
			"channel": msg.Channel,
			"to":      msg.To,
			"body":    rendered,
		},
	}, nil
}

// recipientFor picks the delivery address for a channel from the run
// context's client record.
func recipientFor(channel string, runContext map[string]interface{}) string {
	var path string
	switch channel {
	case "email":
		path = "client.email"
	default:
		path = "client.phone"
	}
	if v := utils.GetNestedValue(runContext, path); v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
