package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// PublishRequest is the payload handed to the CMS after approval.
type PublishRequest struct {
	JobID    string `json:"job_id"`
	Topic    string `json:"topic"`
	Content  string `json:"content"`
	Reviewer string `json:"reviewer"`
}

// Publisher hands approved content off to the publishing system.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) error
}

// WebhookPublisher POSTs the payload to a CMS webhook.
type WebhookPublisher struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewWebhookPublisher(url string, logger zerolog.Logger) *WebhookPublisher {
	return &WebhookPublisher{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, req PublishRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode publish payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("cms webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("cms webhook returned %d: %s", resp.StatusCode, string(detail))
	}
	p.logger.Info().Str("job_id", req.JobID).Msg("publish: content delivered to cms")
	return nil
}

// LogPublisher is used when no CMS webhook is configured. The handoff is
// logged and treated as delivered.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p *LogPublisher) Publish(_ context.Context, req PublishRequest) error {
	p.Logger.Info().
		Str("job_id", req.JobID).
		Str("topic", req.Topic).
		Int("content_bytes", len(req.Content)).
		Msg("publish: no cms webhook configured, content logged only")
	return nil
}
