package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const pageColumns = `id, owner_id, name, url, frequency_number, frequency_unit,
	content_mode, last_checked_at, has_changed, last_seen_snapshot_id,
	created_at, updated_at`

// InsertPage adds a new monitored page.
func (s *Store) InsertPage(ctx context.Context, p *Page) error {
	now := time.Now().UnixMilli()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	if p.UpdatedAt == 0 {
		p.UpdatedAt = now
	}
	if p.FrequencyNumber == 0 {
		p.FrequencyNumber = 1
	}
	if p.FrequencyUnit == "" {
		p.FrequencyUnit = UnitHour
	}
	if p.ContentMode == "" {
		p.ContentMode = ModeRaw
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO pages (id, owner_id, name, url, frequency_number, frequency_unit,
		content_mode, last_checked_at, has_changed, last_seen_snapshot_id,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Name, p.URL, p.FrequencyNumber, p.FrequencyUnit,
		p.ContentMode, p.LastCheckedAt, p.HasChanged, nullable(p.LastSeenSnapshotID),
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// GetPage retrieves a page by ID. Returns (nil, nil) if absent.
func (s *Store) GetPage(ctx context.Context, id string) (*Page, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE id = ?`, id)
	return scanPage(row)
}

// ListPages returns all pages ordered by ID, which gives sweeps a stable,
// deterministic enumeration order.
func (s *Store) ListPages(ctx context.Context) ([]*Page, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM pages ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPages(rows)
}

// ListPagesByOwner returns one owner's pages, newest first.
func (s *Store) ListPagesByOwner(ctx context.Context, ownerID string) ([]*Page, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE owner_id = ? ORDER BY created_at DESC`,
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPages(rows)
}

// UpdatePage updates a page's registration fields. Check and watermark state
// is owned by RecordChecked / SetHasChanged / SetLastSeen.
func (s *Store) UpdatePage(ctx context.Context, p *Page) error {
	p.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE pages SET name=?, url=?, frequency_number=?, frequency_unit=?,
		content_mode=?, updated_at=?
		WHERE id=?`,
		p.Name, p.URL, p.FrequencyNumber, p.FrequencyUnit,
		p.ContentMode, p.UpdatedAt, p.ID,
	)
	return err
}

// DeletePage removes a page (cascades to snapshots and check_log).
func (s *Store) DeletePage(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, id)
	return err
}

// CountPages returns the total number of registered pages.
func (s *Store) CountPages(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&count)
	return count, err
}

// RecordChecked marks a page as successfully checked at the given time.
// Only called after a fetch success; failed checks leave the page untouched
// so the next sweep re-attempts it.
func (s *Store) RecordChecked(ctx context.Context, id string, atMs int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE pages SET last_checked_at=?, updated_at=? WHERE id=?`,
		atMs, atMs, id)
	return err
}

// SetHasChanged flips the page's unseen-change flag.
func (s *Store) SetHasChanged(ctx context.Context, id string, changed bool) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE pages SET has_changed=?, updated_at=? WHERE id=?`,
		changed, time.Now().UnixMilli(), id)
	return err
}

// SetLastSeen advances the watermark to the given snapshot and clears the
// unseen-change flag in the same statement.
func (s *Store) SetLastSeen(ctx context.Context, id, snapshotID string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE pages SET last_seen_snapshot_id=?, has_changed=0, updated_at=? WHERE id=?`,
		snapshotID, time.Now().UnixMilli(), id)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanPage(row *sql.Row) (*Page, error) {
	var p Page
	var hasChanged int
	var lastSeen sql.NullString
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.URL, &p.FrequencyNumber, &p.FrequencyUnit,
		&p.ContentMode, &p.LastCheckedAt, &hasChanged, &lastSeen,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan page: %w", err)
	}
	p.HasChanged = hasChanged != 0
	p.LastSeenSnapshotID = lastSeen.String
	return &p, nil
}

func collectPages(rows *sql.Rows) ([]*Page, error) {
	var pages []*Page
	for rows.Next() {
		var p Page
		var hasChanged int
		var lastSeen sql.NullString
		err := rows.Scan(
			&p.ID, &p.OwnerID, &p.Name, &p.URL, &p.FrequencyNumber, &p.FrequencyUnit,
			&p.ContentMode, &p.LastCheckedAt, &hasChanged, &lastSeen,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.HasChanged = hasChanged != 0
		p.LastSeenSnapshotID = lastSeen.String
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}
