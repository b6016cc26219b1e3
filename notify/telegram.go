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

// TelegramConfig configures the Telegram bot sender.
type TelegramConfig struct {
	// BotToken is the Telegram bot API token (from @BotFather).
	BotToken string `yaml:"bot_token"`
	// APIBase overrides the bot API endpoint, for tests.
	APIBase string `yaml:"-"`
}

// TelegramSender delivers alerts via the Telegram bot API, one message per
// alert to the chat each user registered.
type TelegramSender struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegramSender builds a TelegramSender.
func NewTelegramSender(cfg TelegramConfig) *TelegramSender {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.telegram.org"
	}
	return &TelegramSender{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// Send implements Sender.
func (t *TelegramSender) Send(ctx context.Context, settings *monitor.NotificationSettings, page *monitor.Page, result *monitor.CheckResult) error {
	if t.cfg.BotToken == "" {
		return fmt.Errorf("telegram: bot_token is required")
	}
	if settings.TelegramChatID == "" {
		return fmt.Errorf("telegram: no chat_id configured")
	}

	text := alertText(page, result)
	if len(text) > 4000 { // Telegram caps messages at 4096 chars
		text = text[:4000] + "\n... (truncated)"
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": settings.TelegramChatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.APIBase, t.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: api returned %d", resp.StatusCode)
	}
	return nil
}
