package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const slackTimeout = 5 * time.Second

// Slack posts Block Kit alerts to an incoming-webhook URL. With no
// URL configured it degrades to a logged no-op.
type Slack struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewSlack creates a Slack notifier.
func NewSlack(webhookURL string, logger *zap.Logger) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: slackTimeout},
		logger:     logger,
	}
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type     string       `json:"type"`
	Text     *slackText   `json:"text,omitempty"`
	Elements []*slackText `json:"elements,omitempty"`
}

// Notify posts a header + section + timestamp context message.
func (s *Slack) Notify(ctx context.Context, subject, message string) error {
	if s.webhookURL == "" {
		s.logger.Warn("slack webhook not configured, alert not sent")
		return nil
	}

	payload := struct {
		Blocks []slackBlock `json:"blocks"`
	}{
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: subject, Emoji: true}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "*Message:*\n" + message}},
			{Type: "context", Elements: []*slackText{
				{Type: "mrkdwn", Text: "*Timestamp:* " + time.Now().UTC().Format(time.RFC3339)},
			}},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}
