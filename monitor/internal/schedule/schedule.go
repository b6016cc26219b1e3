// Package schedule decides when monitored pages are due for a check and
// feeds them to a job sink on a fixed sweep cadence.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/mntr/monitor/internal/store"
)

// UnitLength maps a frequency unit to its duration. Months and years use
// fixed 30-day and 365-day approximations.
func UnitLength(unit string) time.Duration {
	switch unit {
	case store.UnitMinute:
		return time.Minute
	case store.UnitHour:
		return time.Hour
	case store.UnitDay:
		return 24 * time.Hour
	case store.UnitWeek:
		return 7 * 24 * time.Hour
	case store.UnitMonth:
		return 30 * 24 * time.Hour
	case store.UnitYear:
		return 365 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// Interval returns the configured check interval of a page.
func Interval(p *store.Page) time.Duration {
	n := p.FrequencyNumber
	if n <= 0 {
		n = 1
	}
	return time.Duration(n) * UnitLength(p.FrequencyUnit)
}

// IsDue reports whether a page should be checked at the given instant.
// A page that has never been checked is always due. Otherwise it is due
// only when strictly more than its interval has elapsed since the last
// check, so a check exactly at the boundary does not fire.
func IsDue(p *store.Page, now time.Time) bool {
	if p.LastCheckedAt == nil {
		return true
	}
	elapsed := now.Sub(time.UnixMilli(*p.LastCheckedAt))
	return elapsed > Interval(p)
}

// JobSink receives page IDs that are due for a check. Implementations
// must be safe to call from the sweep loop.
type JobSink interface {
	Enqueue(ctx context.Context, pageID string) error
}

// Config holds scheduler tuning.
type Config struct {
	// SweepInterval is how often the scheduler scans for due pages.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func (c Config) defaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 4 * time.Minute
	}
	return c
}

// Scheduler periodically sweeps registered pages and enqueues the due ones.
type Scheduler struct {
	store  *store.Store
	sink   JobSink
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New builds a Scheduler. A nil logger falls back to slog.Default.
func New(st *store.Store, sink JobSink, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:  st,
		sink:   sink,
		cfg:    cfg.defaults(),
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the scheduler's clock. Intended for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Sweep scans all pages once and enqueues those due at the given instant.
// Pages are visited in stable ID order. Returns the number enqueued.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (int, error) {
	pages, err := s.store.ListPages(ctx)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, p := range pages {
		if !IsDue(p, now) {
			continue
		}
		if err := s.sink.Enqueue(ctx, p.ID); err != nil {
			s.logger.Warn("enqueue failed", "page_id", p.ID, "error", err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// Run sweeps immediately, then on every tick until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "sweep_interval", s.cfg.SweepInterval)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		n, err := s.Sweep(ctx, s.now())
		if err != nil {
			s.logger.Error("sweep failed", "error", err)
		} else if n > 0 {
			s.logger.Info("sweep enqueued pages", "count", n)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}
