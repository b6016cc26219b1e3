package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSnapshot appends a new snapshot for a page. CreatedAt is forced to be
// strictly greater than the page's current latest snapshot, so per-page
// insertion order and created_at order always agree even if the clock stalls.
// The caller holds the page lock, so the read-then-insert pair cannot race.
func (s *Store) CreateSnapshot(ctx context.Context, id, pageID, content string, nowMs int64) (*Snapshot, error) {
	var maxAt sql.NullInt64
	err := s.DB.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM snapshots WHERE page_id = ?`, pageID).Scan(&maxAt)
	if err != nil {
		return nil, fmt.Errorf("max created_at: %w", err)
	}
	createdAt := nowMs
	if maxAt.Valid && createdAt <= maxAt.Int64 {
		createdAt = maxAt.Int64 + 1
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO snapshots (id, page_id, content, created_at) VALUES (?, ?, ?, ?)`,
		id, pageID, content, createdAt)
	if err != nil {
		return nil, err
	}
	return &Snapshot{ID: id, PageID: pageID, Content: content, CreatedAt: createdAt}, nil
}

// LatestSnapshot returns a page's most recent snapshot, or (nil, nil) if the
// page has no snapshots yet.
func (s *Store) LatestSnapshot(ctx context.Context, pageID string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, page_id, content, created_at FROM snapshots
		WHERE page_id = ? ORDER BY created_at DESC LIMIT 1`, pageID)
	return scanSnapshot(row)
}

// GetSnapshot retrieves a snapshot by ID. Returns (nil, nil) if absent.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, page_id, content, created_at FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

// ListSnapshots returns a page's snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, pageID string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, page_id, content, created_at FROM snapshots
		WHERE page_id = ? ORDER BY created_at DESC LIMIT ?`, pageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// SnapshotsBetween returns snapshots with afterMs < created_at < beforeMs
// (both bounds exclusive), oldest first unless newestFirst is set.
func (s *Store) SnapshotsBetween(ctx context.Context, pageID string, afterMs, beforeMs int64, newestFirst bool) ([]*Snapshot, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, page_id, content, created_at FROM snapshots
		WHERE page_id = ? AND created_at > ? AND created_at < ?
		ORDER BY created_at `+order, pageID, afterMs, beforeMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSnapshots(rows)
}

// CountSnapshots returns the number of snapshots recorded for a page.
func (s *Store) CountSnapshots(ctx context.Context, pageID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE page_id = ?`, pageID).Scan(&count)
	return count, err
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var snap Snapshot
	err := row.Scan(&snap.ID, &snap.PageID, &snap.Content, &snap.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return &snap, nil
}

func collectSnapshots(rows *sql.Rows) ([]*Snapshot, error) {
	var snaps []*Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.PageID, &snap.Content, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}
