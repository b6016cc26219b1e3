package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertNotificationSettings creates or replaces a user's delivery settings.
func (s *Store) UpsertNotificationSettings(ctx context.Context, ns *NotificationSettings) error {
	now := time.Now().UnixMilli()
	if ns.CreatedAt == 0 {
		ns.CreatedAt = now
	}
	ns.UpdatedAt = now
	if ns.Channel == "" {
		ns.Channel = ChannelEmail
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO notification_settings (user_id, channel, email_address,
		slack_webhook_url, telegram_chat_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		channel=excluded.channel, email_address=excluded.email_address,
		slack_webhook_url=excluded.slack_webhook_url,
		telegram_chat_id=excluded.telegram_chat_id, updated_at=excluded.updated_at`,
		ns.UserID, ns.Channel, ns.EmailAddress,
		ns.SlackWebhookURL, ns.TelegramChatID, ns.CreatedAt, ns.UpdatedAt,
	)
	return err
}

// GetNotificationSettings retrieves a user's settings. Returns (nil, nil)
// when the user has none configured.
func (s *Store) GetNotificationSettings(ctx context.Context, userID string) (*NotificationSettings, error) {
	var ns NotificationSettings
	err := s.DB.QueryRowContext(ctx,
		`SELECT user_id, channel, email_address, slack_webhook_url,
		telegram_chat_id, created_at, updated_at
		FROM notification_settings WHERE user_id = ?`, userID).
		Scan(&ns.UserID, &ns.Channel, &ns.EmailAddress, &ns.SlackWebhookURL,
			&ns.TelegramChatID, &ns.CreatedAt, &ns.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan notification settings: %w", err)
	}
	return &ns, nil
}
