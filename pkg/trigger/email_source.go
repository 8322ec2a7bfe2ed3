package trigger

import (
	"context"
	"time"

	"github.com/pipeboard/automation/pkg/logging"
	"github.com/pipeboard/automation/pkg/utils"
)

// EmailSource polls an IMAP mailbox and delivers each unseen message as
// a message_received event on the "email" channel.
type EmailSource struct {
	client   *utils.EmailClient
	service  *Service
	tenantID string
	interval time.Duration
	logger   logging.Logger
}

// NewEmailSource creates an inbound email source for one tenant mailbox
func NewEmailSource(client *utils.EmailClient, service *Service, tenantID string, interval time.Duration, logger logging.Logger) *EmailSource {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &EmailSource{
		client:   client,
		service:  service,
		tenantID: tenantID,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until the context is cancelled
func (s *EmailSource) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.client.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *EmailSource) poll(ctx context.Context) {
	emails, err := s.client.FetchUnseen(50)
	if err != nil {
		s.logger.Warn("email poll failed", logField("error", err.Error()))
		return
	}

	for _, email := range emails {
		ev := Event{
			Type:       EventMessageReceived,
			TenantID:   s.tenantID,
			EventID:    email.MessageID,
			OccurredAt: email.Date,
			Client: map[string]interface{}{
				"email": email.From,
			},
			Message: map[string]interface{}{
				"channel": "email",
				"subject": email.Subject,
				"content": email.Body,
				"from":    email.From,
			},
		}
		if _, err := s.service.OnEvent(ctx, ev); err != nil {
			s.logger.Error("inbound email event failed",
				logField("message_id", email.MessageID), logField("error", err.Error()))
		}
	}
}
