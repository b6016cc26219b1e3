package store

// Frequency units for a page's check interval. Month and year are fixed
// 30-day and 365-day approximations, not calendar-aware.
const (
	UnitMinute = "minute"
	UnitHour   = "hour"
	UnitDay    = "day"
	UnitWeek   = "week"
	UnitMonth  = "month"
	UnitYear   = "year"
)

// Content modes controlling what gets snapshotted.
const (
	// ModeRaw stores the fetched body as-is.
	ModeRaw = "raw"
	// ModeText normalizes fetched HTML to markdown before comparing and
	// storing, so markup churn does not register as a content change.
	ModeText = "text"
)

// Notification channels.
const (
	ChannelEmail    = "email"
	ChannelSlack    = "slack"
	ChannelTelegram = "telegram"
)

// Page is a monitored web page.
type Page struct {
	ID              string `json:"id"`
	OwnerID         string `json:"owner_id"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	FrequencyNumber int    `json:"frequency_number"`
	FrequencyUnit   string `json:"frequency_unit"`
	ContentMode     string `json:"content_mode"`
	// LastCheckedAt is nil until the first successful check; a page that
	// has never been checked is always due.
	LastCheckedAt *int64 `json:"last_checked_at,omitempty"`
	// HasChanged is true iff the latest snapshot differs from content the
	// owner has acknowledged seeing.
	HasChanged bool `json:"has_changed"`
	// LastSeenSnapshotID is the watermark: the most recent snapshot the
	// owner has acknowledged viewing. Empty means no watermark.
	LastSeenSnapshotID string `json:"last_seen_snapshot_id,omitempty"`
	CreatedAt          int64  `json:"created_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

// Snapshot is the immutable captured content of a page at one point in time.
// Content and CreatedAt are write-once; snapshots are never mutated.
type Snapshot struct {
	ID        string `json:"id"`
	PageID    string `json:"page_id"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// NotificationSettings holds one user's delivery channel configuration.
type NotificationSettings struct {
	UserID          string `json:"user_id"`
	Channel         string `json:"channel"`
	EmailAddress    string `json:"email_address"`
	SlackWebhookURL string `json:"slack_webhook_url"`
	TelegramChatID  string `json:"telegram_chat_id"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}

// CheckLogEntry is one check attempt record.
type CheckLogEntry struct {
	ID           string `json:"id"`
	PageID       string `json:"page_id"`
	Status       string `json:"status"` // "created" | "unchanged" | "error"
	StatusCode   int    `json:"status_code"`
	SnapshotID   string `json:"snapshot_id"`
	ErrorMessage string `json:"error_message"`
	DurationMs   int64  `json:"duration_ms"`
	CheckedAt    int64  `json:"checked_at"`
}
