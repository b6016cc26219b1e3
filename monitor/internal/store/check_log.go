package store

import (
	"context"
	"fmt"
)

// InsertCheckLog records one check attempt.
func (s *Store) InsertCheckLog(ctx context.Context, e *CheckLogEntry) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO check_log (id, page_id, status, status_code, snapshot_id,
		error_message, duration_ms, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PageID, e.Status, e.StatusCode, e.SnapshotID,
		e.ErrorMessage, e.DurationMs, e.CheckedAt,
	)
	return err
}

// CheckHistory returns check log entries for a page, newest first.
func (s *Store) CheckHistory(ctx context.Context, pageID string, limit int) ([]*CheckLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, page_id, status, status_code, snapshot_id,
		error_message, duration_ms, checked_at
		FROM check_log WHERE page_id = ?
		ORDER BY checked_at DESC LIMIT ?`, pageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*CheckLogEntry
	for rows.Next() {
		var e CheckLogEntry
		err := rows.Scan(&e.ID, &e.PageID, &e.Status, &e.StatusCode, &e.SnapshotID,
			&e.ErrorMessage, &e.DurationMs, &e.CheckedAt)
		if err != nil {
			return nil, fmt.Errorf("scan check log: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
