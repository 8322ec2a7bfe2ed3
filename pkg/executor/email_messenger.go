package executor

import (
	"context"
	"fmt"

	"github.com/pipeboard/automation/pkg/utils"
)

// EmailMessenger is a Messenger backed by the SMTP email client. It
// covers the "email" channel; WhatsApp and SMS go through external
// integration adapters supplied at wiring time.
type EmailMessenger struct {
	client *utils.EmailClient
	from   string
}

// NewEmailMessenger creates an email-channel messenger
func NewEmailMessenger(client *utils.EmailClient, from string) *EmailMessenger {
	return &EmailMessenger{client: client, from: from}
}

// SendMessage delivers an email-channel message
func (m *EmailMessenger) SendMessage(ctx context.Context, msg OutboundMessage) error {
	if msg.Channel != "email" {
		return fmt.Errorf("email messenger cannot deliver channel %q", msg.Channel)
	}
	if msg.To == "" {
		return fmt.Errorf("message has no recipient address")
	}

	subject := msg.Subject
	if subject == "" {
		subject = "Message from your CRM"
	}

	return m.client.SendEmail(utils.EmailMessage{
		From:    m.from,
		To:      []string{msg.To},
		Subject: subject,
		Body:    msg.Body,
	})
}
