package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hazyhaar/mntr/monitor"
)

// SlackSender delivers alerts to a per-user incoming webhook.
type SlackSender struct {
	client *http.Client
}

// NewSlackSender builds a SlackSender.
func NewSlackSender() *SlackSender {
	return &SlackSender{client: &http.Client{Timeout: 10 * time.Second}}
}

type slackBlock struct {
	Type string          `json:"type"`
	Text *slackBlockText `json:"text,omitempty"`
}

type slackBlockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send implements Sender. The payload uses Block Kit: a header with the
// page name, then the diff excerpt in a code block.
func (s *SlackSender) Send(ctx context.Context, settings *monitor.NotificationSettings, page *monitor.Page, result *monitor.CheckResult) error {
	if settings.SlackWebhookURL == "" {
		return fmt.Errorf("slack: no webhook configured")
	}

	body := fmt.Sprintf("<%s|%s>", page.URL, page.URL)
	if result.Diff != "" {
		diff := result.Diff
		if len(diff) > 2800 { // Slack caps section text at 3000 chars
			diff = diff[:2800] + "\n... (truncated)"
		}
		body += "\n```" + diff + "```"
	}

	payload := map[string]any{
		"text": fmt.Sprintf("Change detected: %s", page.Name),
		"blocks": []slackBlock{
			{Type: "header", Text: &slackBlockText{Type: "plain_text", Text: "Change detected: " + page.Name}},
			{Type: "section", Text: &slackBlockText{Type: "mrkdwn", Text: body}},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("slack: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.SlackWebhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("slack: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack: webhook returned %d", resp.StatusCode)
	}
	return nil
}
