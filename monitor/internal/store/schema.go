package store

import "database/sql"

// Schema is the complete mntr schema.
//
// pages.last_seen_snapshot_id intentionally carries no foreign key: the
// belongs-to-page invariant is enforced by the service under the per-page
// lock, and snapshot deletion is not a core operation.
const Schema = `
-- Monitored pages
CREATE TABLE IF NOT EXISTS pages (
    id                    TEXT PRIMARY KEY,
    owner_id              TEXT NOT NULL,
    name                  TEXT NOT NULL,
    url                   TEXT NOT NULL,
    frequency_number      INTEGER NOT NULL DEFAULT 1,
    frequency_unit        TEXT NOT NULL DEFAULT 'hour',
    content_mode          TEXT NOT NULL DEFAULT 'raw',
    last_checked_at       INTEGER,
    has_changed           INTEGER NOT NULL DEFAULT 0,
    last_seen_snapshot_id TEXT,
    created_at            INTEGER NOT NULL,
    updated_at            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pages_owner ON pages(owner_id);

-- Append-only snapshot history, one row per observed content change
CREATE TABLE IF NOT EXISTS snapshots (
    id         TEXT PRIMARY KEY,
    page_id    TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
    content    TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_page_time ON snapshots(page_id, created_at);

-- Per-user notification delivery configuration
CREATE TABLE IF NOT EXISTS notification_settings (
    user_id           TEXT PRIMARY KEY,
    channel           TEXT NOT NULL DEFAULT 'email',
    email_address     TEXT NOT NULL DEFAULT '',
    slack_webhook_url TEXT NOT NULL DEFAULT '',
    telegram_chat_id  TEXT NOT NULL DEFAULT '',
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);

-- Check log (observability)
CREATE TABLE IF NOT EXISTS check_log (
    id            TEXT PRIMARY KEY,
    page_id       TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
    status        TEXT NOT NULL,
    status_code   INTEGER NOT NULL DEFAULT 0,
    snapshot_id   TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    checked_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_check_log_page ON check_log(page_id, checked_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
