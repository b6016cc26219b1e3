// Package monitor is the page change-detection service. It owns page
// registration, scheduled and manual checks, snapshot history, diffing,
// and the seen/unseen watermark.
package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/mntr/checkq"
	"github.com/hazyhaar/mntr/diff"
	"github.com/hazyhaar/mntr/horosafe"
	"github.com/hazyhaar/mntr/idgen"
	"github.com/hazyhaar/mntr/monitor/internal/extract"
	"github.com/hazyhaar/mntr/monitor/internal/fetch"
	"github.com/hazyhaar/mntr/monitor/internal/schedule"
	"github.com/hazyhaar/mntr/monitor/internal/store"
)

// Service is the main monitor orchestrator.
type Service struct {
	store        *store.Store
	fetcher      *fetch.Fetcher
	extractor    *extract.Extractor
	scheduler    *schedule.Scheduler
	queue        *checkq.Q
	notifier     Notifier
	logger       *slog.Logger
	config       *Config
	newID        func() string
	now          func() time.Time
	urlValidator func(string) error

	// locks serializes checks and watermark moves per page.
	locks sync.Map // pageID -> *sync.Mutex
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithNotifier sets the change-alert dispatcher. Without one, changes are
// recorded but nobody is told.
func WithNotifier(n Notifier) ServiceOption {
	return func(svc *Service) { svc.notifier = n }
}

// WithURLValidator overrides the URL validation function (default:
// horosafe.ValidateURL). Use in tests with httptest servers that listen
// on loopback addresses.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(svc *Service) { svc.urlValidator = fn }
}

// WithClock overrides the service clock. Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(svc *Service) { svc.now = now }
}

// WithIDGenerator overrides the ID generator. Intended for tests.
func WithIDGenerator(g func() string) ServiceOption {
	return func(svc *Service) { svc.newID = g }
}

// New creates a monitor Service on an open database. It applies the schema
// and the queue table, so callers only need dbopen.Open.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	svc := &Service{
		store:        store.NewStore(db),
		extractor:    extract.New(),
		logger:       logger,
		config:       cfg,
		newID:        idgen.New,
		now:          time.Now,
		urlValidator: horosafe.ValidateURL,
	}
	for _, opt := range opts {
		opt(svc)
	}

	fetchCfg := cfg.Fetch
	fetchCfg.URLValidator = svc.urlValidator
	svc.fetcher = fetch.New(fetchCfg)

	svc.queue = checkq.New(db, checkq.Options{
		Visibility:   cfg.Queue.Visibility,
		PollInterval: cfg.Queue.PollInterval,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		Logger:       logger,
	})
	if err := svc.queue.EnsureTable(context.Background()); err != nil {
		return nil, fmt.Errorf("ensure queue table: %w", err)
	}

	svc.scheduler = schedule.New(svc.store, svc.queue, cfg.Scheduler, logger)
	return svc, nil
}

// Start launches the background scheduler and check workers. Non-blocking;
// both stop when ctx is cancelled.
func (svc *Service) Start(ctx context.Context) {
	go svc.scheduler.Run(ctx)
	go svc.queue.Run(ctx, svc.config.Queue.BatchSize, svc.config.Queue.MaxConcurrency,
		func(ctx context.Context, job *checkq.Job) error {
			_, err := svc.CheckPage(ctx, job.PageID)
			if errors.Is(err, ErrPageNotFound) {
				// Page deleted while queued. Nothing to retry.
				return nil
			}
			return err
		})
	svc.logger.Info("monitor: started")
}

func (svc *Service) pageLock(pageID string) *sync.Mutex {
	mu, _ := svc.locks.LoadOrStore(pageID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// --- Pages ---

func (svc *Service) validatePage(p *Page) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if p.URL == "" {
		return fmt.Errorf("%w: url required", ErrInvalidInput)
	}
	switch p.FrequencyUnit {
	case UnitMinute, UnitHour, UnitDay, UnitWeek, UnitMonth, UnitYear:
	default:
		return fmt.Errorf("%w: unknown frequency unit %q", ErrInvalidInput, p.FrequencyUnit)
	}
	if p.FrequencyNumber <= 0 {
		return fmt.Errorf("%w: frequency number must be positive", ErrInvalidInput)
	}
	switch p.ContentMode {
	case ModeRaw, ModeText:
	default:
		return fmt.Errorf("%w: unknown content mode %q", ErrInvalidInput, p.ContentMode)
	}
	return svc.urlValidator(p.URL)
}

// AddPage registers a new monitored page. Missing frequency and mode fields
// get defaults (1/hour, raw) before validation. An omitted name is taken
// from the fetched page's <title>, falling back to the URL.
func (svc *Service) AddPage(ctx context.Context, p *Page) error {
	if p.ID == "" {
		p.ID = svc.newID()
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
	if p.Name == "" && p.URL != "" {
		// Validate before fetching so a bad URL never gets a request.
		if err := svc.urlValidator(p.URL); err != nil {
			return err
		}
		p.Name = svc.fetchTitle(ctx, p.URL)
	}
	if err := svc.validatePage(p); err != nil {
		return err
	}
	if err := svc.store.InsertPage(ctx, p); err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	svc.logger.Info("page added", "page_id", p.ID, "url", p.URL)
	return nil
}

// fetchTitle fetches a page and returns its <title> text. The URL itself is
// the fallback when the fetch fails or the document carries no title.
func (svc *Service) fetchTitle(ctx context.Context, url string) string {
	res, err := svc.fetcher.Fetch(ctx, url)
	if err != nil {
		return url
	}
	if t := extract.Title(string(res.Body)); t != "" {
		return t
	}
	return url
}

// GetPage loads a page by ID.
func (svc *Service) GetPage(ctx context.Context, pageID string) (*Page, error) {
	p, err := svc.store.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPageNotFound
	}
	return p, nil
}

// ListPages returns all registered pages in stable ID order.
func (svc *Service) ListPages(ctx context.Context) ([]*Page, error) {
	return svc.store.ListPages(ctx)
}

// ListPagesByOwner returns one owner's pages, newest first.
func (svc *Service) ListPagesByOwner(ctx context.Context, ownerID string) ([]*Page, error) {
	return svc.store.ListPagesByOwner(ctx, ownerID)
}

// UpdatePage updates a page's registration fields. Unset fields keep their
// existing values. Check state and the watermark are not touched.
func (svc *Service) UpdatePage(ctx context.Context, p *Page) error {
	existing, err := svc.GetPage(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.Name == "" {
		p.Name = existing.Name
	}
	if p.URL == "" {
		p.URL = existing.URL
	}
	if p.FrequencyNumber == 0 {
		p.FrequencyNumber = existing.FrequencyNumber
	}
	if p.FrequencyUnit == "" {
		p.FrequencyUnit = existing.FrequencyUnit
	}
	if p.ContentMode == "" {
		p.ContentMode = existing.ContentMode
	}
	if err := svc.validatePage(p); err != nil {
		return err
	}
	if err := svc.store.UpdatePage(ctx, p); err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	return nil
}

// DeletePage removes a page with its snapshots and check history.
func (svc *Service) DeletePage(ctx context.Context, pageID string) error {
	if _, err := svc.GetPage(ctx, pageID); err != nil {
		return err
	}
	if err := svc.store.DeletePage(ctx, pageID); err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	svc.locks.Delete(pageID)
	svc.logger.Info("page deleted", "page_id", pageID)
	return nil
}

// --- Checks ---

// CheckPage fetches a page now and records the outcome. Concurrent checks
// of the same page are serialized, so a slow fetch cannot race a second
// check into a duplicate snapshot.
//
// A fetch failure is recorded in the check log and returned as a
// *FetchError; the page row and its snapshots are left untouched so the
// next sweep simply retries.
func (svc *Service) CheckPage(ctx context.Context, pageID string) (*CheckResult, error) {
	mu := svc.pageLock(pageID)
	mu.Lock()
	defer mu.Unlock()

	page, err := svc.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	log := svc.logger.With("page_id", pageID, "url", page.URL)

	start := svc.now()
	res, fetchErr := svc.fetcher.Fetch(ctx, page.URL)
	durationMs := svc.now().Sub(start).Milliseconds()

	if fetchErr != nil {
		statusCode := 0
		if res != nil {
			statusCode = res.StatusCode
		}
		entry := &CheckLogEntry{
			ID:           svc.newID(),
			PageID:       pageID,
			Status:       StatusError,
			StatusCode:   statusCode,
			ErrorMessage: fetchErr.Error(),
			DurationMs:   durationMs,
			CheckedAt:    svc.now().UnixMilli(),
		}
		if err := svc.store.InsertCheckLog(ctx, entry); err != nil {
			log.Warn("check log write failed", "error", err)
		}
		log.Warn("check failed", "error", fetchErr)
		return nil, &FetchError{URL: page.URL, Cause: fetchErr}
	}

	content := string(res.Body)
	if page.ContentMode == ModeText {
		content = svc.extractor.Markdown(content, page.URL)
	}

	nowMs := svc.now().UnixMilli()
	latest, err := svc.store.LatestSnapshot(ctx, pageID)
	if err != nil {
		return nil, &StorageError{Op: "latest snapshot", Err: err}
	}

	result := &CheckResult{
		PageID:     pageID,
		StatusCode: res.StatusCode,
		DurationMs: durationMs,
	}

	switch {
	case latest == nil:
		// First check: the baseline snapshot counts as already seen.
		snap, err := svc.store.CreateSnapshot(ctx, svc.newID(), pageID, content, nowMs)
		if err != nil {
			return nil, &StorageError{Op: "create snapshot", Err: err}
		}
		if err := svc.store.SetLastSeen(ctx, pageID, snap.ID); err != nil {
			return nil, &StorageError{Op: "set watermark", Err: err}
		}
		result.Status = StatusCreated
		result.SnapshotID = snap.ID
		result.Message = "baseline snapshot recorded"
		log.Info("baseline snapshot", "snapshot_id", snap.ID)

	case latest.Content == content:
		result.Status = StatusUnchanged
		result.Message = "no change"

	default:
		snap, err := svc.store.CreateSnapshot(ctx, svc.newID(), pageID, content, nowMs)
		if err != nil {
			return nil, &StorageError{Op: "create snapshot", Err: err}
		}
		if err := svc.store.SetHasChanged(ctx, pageID, true); err != nil {
			return nil, &StorageError{Op: "set has_changed", Err: err}
		}
		result.Status = StatusCreated
		result.Changed = true
		result.SnapshotID = snap.ID
		unified, err := diff.Unified(latest.Content, content)
		if err != nil {
			// The snapshot is already stored; a broken diff only degrades
			// the notification body.
			log.Warn("unified diff failed", "error", err)
		}
		result.Diff = unified
		result.Message = "change detected"
		log.Info("change detected", "snapshot_id", snap.ID)

		if svc.notifier != nil {
			if err := svc.notifier.Notify(ctx, page, result); err != nil {
				log.Warn("notification failed", "error", err)
			}
		}
	}

	if err := svc.store.RecordChecked(ctx, pageID, nowMs); err != nil {
		return nil, &StorageError{Op: "record checked", Err: err}
	}
	entry := &CheckLogEntry{
		ID:         svc.newID(),
		PageID:     pageID,
		Status:     result.Status,
		StatusCode: res.StatusCode,
		SnapshotID: result.SnapshotID,
		DurationMs: durationMs,
		CheckedAt:  nowMs,
	}
	if err := svc.store.InsertCheckLog(ctx, entry); err != nil {
		log.Warn("check log write failed", "error", err)
	}
	return result, nil
}

// EnqueueCheck queues a page for an asynchronous check. Duplicate enqueues
// of the same page collapse into one pending job.
func (svc *Service) EnqueueCheck(ctx context.Context, pageID string) error {
	if _, err := svc.GetPage(ctx, pageID); err != nil {
		return err
	}
	return svc.queue.Enqueue(ctx, pageID)
}

// CheckHistory returns recent check log entries for a page, newest first.
func (svc *Service) CheckHistory(ctx context.Context, pageID string, limit int) ([]*CheckLogEntry, error) {
	if _, err := svc.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	return svc.store.CheckHistory(ctx, pageID, limit)
}

// --- Snapshots and watermark ---

// Snapshots returns a page's snapshots, newest first.
func (svc *Service) Snapshots(ctx context.Context, pageID string, limit int) ([]*Snapshot, error) {
	if _, err := svc.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	return svc.store.ListSnapshots(ctx, pageID, limit)
}

// GetSnapshot loads one of a page's snapshots by ID. Viewing a snapshot
// this way does not move the watermark.
func (svc *Service) GetSnapshot(ctx context.Context, pageID, snapshotID string) (*Snapshot, error) {
	if _, err := svc.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	snap, err := svc.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.PageID != pageID {
		return nil, ErrSnapshotNotFound
	}
	return snap, nil
}

// MarkSeen moves the page's watermark to the given snapshot and clears the
// unseen-change flag. The snapshot must belong to the page.
func (svc *Service) MarkSeen(ctx context.Context, pageID, snapshotID string) error {
	mu := svc.pageLock(pageID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := svc.GetSnapshot(ctx, pageID, snapshotID); err != nil {
		return err
	}
	if err := svc.store.SetLastSeen(ctx, pageID, snapshotID); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

// MarkLatestSeen moves the watermark to the page's newest snapshot.
// No-op when the page has no snapshots. Returns the snapshot ID the
// watermark now points at.
func (svc *Service) MarkLatestSeen(ctx context.Context, pageID string) (string, error) {
	mu := svc.pageLock(pageID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := svc.GetPage(ctx, pageID); err != nil {
		return "", err
	}
	latest, err := svc.store.LatestSnapshot(ctx, pageID)
	if err != nil {
		return "", err
	}
	if latest == nil {
		return "", nil
	}
	if err := svc.store.SetLastSeen(ctx, pageID, latest.ID); err != nil {
		return "", fmt.Errorf("set watermark: %w", err)
	}
	return latest.ID, nil
}

// Intermediaries returns the snapshots recorded after the watermark but
// before the latest snapshot, oldest first. Empty when the page has no
// watermark or nothing happened in between.
func (svc *Service) Intermediaries(ctx context.Context, pageID string) ([]*Snapshot, error) {
	page, err := svc.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if page.LastSeenSnapshotID == "" {
		return nil, nil
	}
	seen, err := svc.store.GetSnapshot(ctx, page.LastSeenSnapshotID)
	if err != nil {
		return nil, err
	}
	if seen == nil {
		return nil, nil
	}
	latest, err := svc.store.LatestSnapshot(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.ID == seen.ID {
		return nil, nil
	}
	return svc.store.SnapshotsBetween(ctx, pageID, seen.CreatedAt, latest.CreatedAt, false)
}

// --- Diffs ---

func renderDiff(baseID, targetID, baseContent, targetContent string) (*DiffResult, error) {
	unified, err := diff.Unified(baseContent, targetContent)
	if err != nil {
		return nil, fmt.Errorf("render diff: %w", err)
	}
	return &DiffResult{
		BaseID:    baseID,
		TargetID:  targetID,
		Unified:   unified,
		Inline:    diff.InlineHTML(baseContent, targetContent),
		Identical: baseContent == targetContent,
	}, nil
}

// SnapshotDiff compares two snapshots of the same page.
func (svc *Service) SnapshotDiff(ctx context.Context, pageID, baseID, targetID string) (*DiffResult, error) {
	base, err := svc.GetSnapshot(ctx, pageID, baseID)
	if err != nil {
		return nil, err
	}
	target, err := svc.GetSnapshot(ctx, pageID, targetID)
	if err != nil {
		return nil, err
	}
	return renderDiff(base.ID, target.ID, base.Content, target.Content)
}

// UnseenDiff compares the watermark snapshot against the latest one. With
// no watermark the base is treated as empty, so everything reads as new.
// Returns ErrSnapshotNotFound when the page has no snapshots at all.
func (svc *Service) UnseenDiff(ctx context.Context, pageID string) (*DiffResult, error) {
	page, err := svc.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	latest, err := svc.store.LatestSnapshot(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrSnapshotNotFound
	}

	baseID, baseContent := "", ""
	if page.LastSeenSnapshotID != "" {
		seen, err := svc.store.GetSnapshot(ctx, page.LastSeenSnapshotID)
		if err != nil {
			return nil, err
		}
		if seen != nil {
			baseID, baseContent = seen.ID, seen.Content
		}
	}
	return renderDiff(baseID, latest.ID, baseContent, latest.Content)
}

// --- Notification settings ---

// SetNotificationSettings creates or replaces a user's delivery settings.
func (svc *Service) SetNotificationSettings(ctx context.Context, ns *NotificationSettings) error {
	switch ns.Channel {
	case "", ChannelEmail, ChannelSlack, ChannelTelegram:
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, ns.Channel)
	}
	if ns.UserID == "" {
		return fmt.Errorf("%w: user_id required", ErrInvalidInput)
	}
	return svc.store.UpsertNotificationSettings(ctx, ns)
}

// GetNotificationSettings returns a user's delivery settings, or (nil, nil)
// when none are configured.
func (svc *Service) GetNotificationSettings(ctx context.Context, userID string) (*NotificationSettings, error) {
	return svc.store.GetNotificationSettings(ctx, userID)
}

// QueueDepth reports the number of pending and in-flight checks.
func (svc *Service) QueueDepth(ctx context.Context) (int, error) {
	return svc.queue.Len(ctx)
}
