package monitor

import (
	"context"

	"github.com/hazyhaar/mntr/monitor/internal/store"
)

// Re-exported storage types. The store package is internal; these aliases
// are the public vocabulary of the service.
type (
	Page                 = store.Page
	Snapshot             = store.Snapshot
	NotificationSettings = store.NotificationSettings
	CheckLogEntry        = store.CheckLogEntry
)

// Frequency units accepted by Page.FrequencyUnit.
const (
	UnitMinute = store.UnitMinute
	UnitHour   = store.UnitHour
	UnitDay    = store.UnitDay
	UnitWeek   = store.UnitWeek
	UnitMonth  = store.UnitMonth
	UnitYear   = store.UnitYear
)

// Content modes accepted by Page.ContentMode.
const (
	// ModeRaw snapshots the response body verbatim.
	ModeRaw = store.ModeRaw
	// ModeText normalizes HTML to markdown before comparing, so markup
	// churn does not register as a change.
	ModeText = store.ModeText
)

// Notification channels accepted by NotificationSettings.Channel.
const (
	ChannelEmail    = store.ChannelEmail
	ChannelSlack    = store.ChannelSlack
	ChannelTelegram = store.ChannelTelegram
)

// Check outcome statuses recorded in the check log.
const (
	StatusCreated   = "created"
	StatusUnchanged = "unchanged"
	StatusError     = "error"
)

// CheckResult describes the outcome of one page check.
type CheckResult struct {
	PageID string `json:"page_id"`
	// Status is one of StatusCreated, StatusUnchanged, StatusError.
	Status string `json:"status"`
	// Changed is true when a new snapshot differing from the previous
	// one was recorded.
	Changed bool `json:"changed"`
	// SnapshotID is set when a snapshot was created.
	SnapshotID string `json:"snapshot_id,omitempty"`
	// Diff is the unified diff against the previous snapshot, set only
	// when Changed.
	Diff string `json:"diff,omitempty"`
	// StatusCode is the HTTP status of the fetch, 0 if the request never
	// completed.
	StatusCode int    `json:"status_code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Message    string `json:"message,omitempty"`
}

// DiffResult holds both renderings of a snapshot comparison.
type DiffResult struct {
	BaseID   string `json:"base_id"`
	TargetID string `json:"target_id"`
	// Unified is the line-oriented unified diff ("old" vs "new").
	Unified string `json:"unified"`
	// Inline is the character-level rendering with <ins>/<del> markers.
	Inline string `json:"inline"`
	// Identical is true when the two snapshots have equal content.
	Identical bool `json:"identical"`
}

// Notifier delivers change alerts. Delivery failures never affect the
// check outcome; implementations should log and move on.
type Notifier interface {
	Notify(ctx context.Context, page *Page, result *CheckResult) error
}
