// Package checkq is the SQLite-backed work queue for page checks.
//
// Each row is one pending check, keyed by page ID, so a page can only be
// queued once at a time no matter how many sweeps or manual requests race
// to enqueue it. A claimed row stays invisible for the visibility duration;
// if the worker crashes or stalls past the timeout the row reappears and
// another worker can claim it.
//
// Schema (created by EnsureTable):
//
//	CREATE TABLE IF NOT EXISTS check_jobs (
//	    page_id     TEXT PRIMARY KEY,
//	    visible_at  INTEGER NOT NULL DEFAULT 0,  -- milliseconds since epoch
//	    created_at  INTEGER NOT NULL,            -- milliseconds since epoch
//	    attempts    INTEGER NOT NULL DEFAULT 0
//	);
package checkq

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Job is one pending page check.
type Job struct {
	PageID    string
	VisibleAt time.Time
	CreatedAt time.Time
	Attempts  int
}

// Options configures queue behaviour.
type Options struct {
	// Visibility is how long a claimed job stays invisible. Default: 60s.
	Visibility time.Duration
	// PollInterval is the delay between claim attempts in the Run loop.
	// Default: 1s.
	PollInterval time.Duration
	// MaxAttempts limits redeliveries before a job is discarded.
	// Negative values disable the limit. Default: 3.
	MaxAttempts int
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 60 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Q is the queue handle.
type Q struct {
	db   *sql.DB
	opts Options
}

// New creates a queue handle. Call EnsureTable once at startup.
func New(db *sql.DB, opts Options) *Q {
	opts.defaults()
	return &Q{db: db, opts: opts}
}

// EnsureTable creates the check_jobs table if it doesn't exist.
func (q *Q) EnsureTable(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS check_jobs (
			page_id     TEXT PRIMARY KEY,
			visible_at  INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			attempts    INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_check_jobs_visible ON check_jobs (visible_at);
	`)
	return err
}

// Enqueue inserts an immediately visible check for a page. If the page is
// already queued (visible or claimed) the call is a no-op, which is what
// keeps concurrent sweeps from stacking duplicate checks.
func (q *Q) Enqueue(ctx context.Context, pageID string) error {
	now := time.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO check_jobs (page_id, visible_at, created_at) VALUES (?,?,?)`,
		pageID, now, now,
	)
	return err
}

// Claim atomically picks the oldest visible job, marks it invisible for the
// visibility duration, and returns it. Returns nil, nil if no job is visible.
func (q *Q) Claim(ctx context.Context) (*Job, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		UPDATE check_jobs
		SET visible_at = ?, attempts = attempts + 1
		WHERE page_id = (
			SELECT page_id FROM check_jobs
			WHERE visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT 1
		)
		RETURNING page_id, visible_at, created_at, attempts`,
		hideUntil, now.UnixMilli(),
	)

	var j Job
	var visAt, creAt int64
	err := row.Scan(&j.PageID, &visAt, &creAt, &j.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.VisibleAt = time.UnixMilli(visAt)
	j.CreatedAt = time.UnixMilli(creAt)
	return &j, nil
}

// Ack deletes a completed job, making the page enqueueable again.
func (q *Q) Ack(ctx context.Context, pageID string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM check_jobs WHERE page_id = ?`, pageID,
	)
	return err
}

// Nack makes a job immediately visible again for retry.
func (q *Q) Nack(ctx context.Context, pageID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE check_jobs SET visible_at = 0 WHERE page_id = ?`, pageID,
	)
	return err
}

// Len returns the total number of jobs (visible + claimed).
func (q *Q) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM check_jobs`).Scan(&n)
	return n, err
}

// Handler processes a claimed check. Return nil to ack, non-nil to nack.
type Handler func(ctx context.Context, job *Job) error

// BatchClaim atomically claims up to n visible jobs. Returns an empty
// (non-nil) slice when nothing is visible.
func (q *Q) BatchClaim(ctx context.Context, n int) ([]*Job, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	rows, err := q.db.QueryContext(ctx, `
		UPDATE check_jobs
		SET visible_at = ?, attempts = attempts + 1
		WHERE page_id IN (
			SELECT page_id FROM check_jobs
			WHERE visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT ?
		)
		RETURNING page_id, visible_at, created_at, attempts`,
		hideUntil, now.UnixMilli(), n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var j Job
		var visAt, creAt int64
		if err := rows.Scan(&j.PageID, &visAt, &creAt, &j.Attempts); err != nil {
			return nil, err
		}
		j.VisibleAt = time.UnixMilli(visAt)
		j.CreatedAt = time.UnixMilli(creAt)
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*Job{}
	}
	return jobs, nil
}

// Run polls in batches and processes checks with bounded concurrency.
// It blocks until ctx is cancelled, draining in-flight handlers before
// returning.
func (q *Q) Run(ctx context.Context, batchSize, maxConcurrency int, handler Handler) {
	log := q.opts.Logger
	log.Info("checkq: worker started",
		"batch_size", batchSize,
		"max_concurrency", maxConcurrency,
		"visibility", q.opts.Visibility,
		"poll", q.opts.PollInterval,
	)

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("checkq: worker stopping, draining in-flight checks")
			wg.Wait()
			log.Info("checkq: worker stopped")
			return
		case <-ticker.C:
			jobs, err := q.BatchClaim(ctx, batchSize)
			if err != nil {
				if ctx.Err() != nil {
					wg.Wait()
					return
				}
				log.Warn("checkq: batch claim failed", "error", err)
				continue
			}

			for _, job := range jobs {
				if q.opts.MaxAttempts > 0 && job.Attempts > q.opts.MaxAttempts {
					log.Warn("checkq: check exceeded max attempts, discarding",
						"page_id", job.PageID, "attempts", job.Attempts)
					_ = q.Ack(ctx, job.PageID)
					continue
				}

				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					_ = q.Nack(ctx, job.PageID)
					wg.Wait()
					return
				}

				wg.Add(1)
				go func(j *Job) {
					defer wg.Done()
					defer func() { <-sem }()

					if err := handler(ctx, j); err != nil {
						log.Warn("checkq: check failed, nacking", "page_id", j.PageID, "error", err)
						_ = q.Nack(context.Background(), j.PageID)
					} else {
						_ = q.Ack(context.Background(), j.PageID)
					}
				}(job)
			}
		}
	}
}
