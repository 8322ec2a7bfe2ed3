package executor

import (
	"context"
	"net/http"
	"time"

	"github.com/pipeboard/automation/pkg/utils"
)

// WebhookExecutor performs an outbound HTTP call. Method, headers and
// body may all contain {{path}} placeholders expanded against the run
// context.
type WebhookExecutor struct {
	client  *utils.HTTPClient
	timeout time.Duration
}

// NewWebhookExecutor creates a webhook executor with a 30s call budget
func NewWebhookExecutor() *WebhookExecutor {
	return &WebhookExecutor{
		client:  utils.NewHTTPClient(),
		timeout: 30 * time.Second,
	}
}

// Execute sends the configured HTTP request
func (e *WebhookExecutor) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	url, err := utils.ProcessTemplate(req.Config.URL, req.Context)
	if err != nil {
		return nil, Errorf(ErrKindConfig, "failed to render url: %v", err)
	}

	method := req.Config.Method
	if method == "" {
		method = http.MethodPost
	}

	headers := make(map[string]string, len(req.Config.Headers))
	for k, v := range req.Config.Headers {
		rendered, err := utils.ProcessTemplate(v, req.Context)
		if err != nil {
			return nil, Errorf(ErrKindConfig, "failed to render header %s: %v", k, err)
		}
		headers[k] = rendered
	}

	var body interface{}
	if req.Config.Body != "" {
		rendered, err := utils.ProcessTemplate(req.Config.Body, req.Context)
		if err != nil {
			return nil, Errorf(ErrKindConfig, "failed to render body: %v", err)
		}
		body = rendered
	}

	resp, err := e.client.Do(ctx, &utils.HTTPRequest{
		URL:     url,
		Method:  method,
		Headers: headers,
		Body:    body,
		Timeout: e.timeout,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, Errorf(ErrKindTimeout, "webhook call timed out: %v", err)
		}
		return nil, Errorf(ErrKindCollaborator, "webhook call failed: %v", err)
	}

	if resp.StatusCode >= 400 {
		return nil, Errorf(ErrKindCollaborator, "webhook returned status %d", resp.StatusCode)
	}

	return map[string]interface{}{
		"webhook_response": map[string]interface{}{
			"status_code": resp.StatusCode,
			"body":        resp.Body,
		},
	}, nil
}
