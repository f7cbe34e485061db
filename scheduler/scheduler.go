// Package scheduler drives the collection pipeline: fetch, extract, merge,
// analyze, notify, on a configurable cadence with retry and backoff.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"travel-monitor/config"
	"travel-monitor/fetcher"
	"travel-monitor/models"
	"travel-monitor/notify"
	"travel-monitor/services"
	"travel-monitor/storage"
	"travel-monitor/utils"
)

// State names the pipeline stage a tick is in
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateRetrying   State = "retrying"
	StateExtracting State = "extracting"
	StateMerging    State = "merging"
	StateAnalyzing  State = "analyzing"
	StateNotifying  State = "notifying"
)

// Mirror is the optional secondary sink merged offers are copied to
type Mirror interface {
	Insert(ctx context.Context, offers []*models.Offer) error
}

// Scheduler owns one recurring search. A single tick runs at a time:
// manual runs and scheduled runs serialize on the same scheduler, and an
// overdue scheduled tick is skipped rather than queued.
type Scheduler struct {
	cfg       *config.Config
	query     models.QueryParams
	logger    *utils.Logger
	searcher  fetcher.Searcher
	extractor *services.Extractor
	store     storage.HistoryStore
	mirror    Mirror // nil when no mirror is configured
	analyzer  *services.Analyzer
	notifier  notify.Notifier
	clock     Clock

	tickGuard chan struct{}

	stateMu sync.Mutex
	state   State
}

// New wires the pipeline together
func New(
	cfg *config.Config,
	logger *utils.Logger,
	searcher fetcher.Searcher,
	store storage.HistoryStore,
	mirror Mirror,
	notifier notify.Notifier,
	clock Clock,
) *Scheduler {
	query := cfg.Query()
	guard := make(chan struct{}, 1)
	guard <- struct{}{}
	return &Scheduler{
		cfg:       cfg,
		query:     query,
		logger:    logger,
		searcher:  searcher,
		extractor: services.NewExtractor(query, logger),
		store:     store,
		mirror:    mirror,
		analyzer:  services.NewAnalyzer(cfg.Alerts),
		notifier:  notifier,
		clock:     clock,
		tickGuard: guard,
		state:     StateIdle,
	}
}

// CurrentState reports the stage of the active tick, or idle
func (s *Scheduler) CurrentState() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Scheduler) setState(runID string, state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
	s.logger.Debug("Run %s: %s", runID, state)
}

// Tick runs one full cycle and always returns a finalized run record,
// even on failure. The scheduler process itself never dies on a tick
// error; the caller decides what the status means.
func (s *Scheduler) Tick(ctx context.Context) *models.SchedulerRun {
	select {
	case <-s.tickGuard:
		defer func() { s.tickGuard <- struct{}{} }()
	default:
		s.logger.Warn("Tick skipped: previous tick still running")
		return &models.SchedulerRun{
			ID:        uuid.NewString(),
			StartedAt: s.clock.Now(),
			EndedAt:   s.clock.Now(),
			Status:    models.RunFailed,
			Err:       errors.New("previous tick still running"),
		}
	}

	run := &models.SchedulerRun{
		ID:        uuid.NewString(),
		StartedAt: s.clock.Now(),
	}
	defer s.finalize(run)

	if s.cfg.Fetch.TickTimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Fetch.TickTimeoutSec)*time.Second)
		defer cancel()
	}

	fragments, err := s.fetchWithRetry(ctx, run)
	if err != nil {
		run.Status = models.RunFailed
		run.Err = err
		return run
	}
	if len(fragments) == 0 {
		// an empty result set is a legitimate answer, not a fetch failure
		s.logger.Info("Run %s: source returned no offers", run.ID)
		run.Status = models.RunSuccess
		return run
	}

	s.setState(run.ID, StateExtracting)
	offers := make([]*models.Offer, 0, len(fragments))
	for _, frag := range fragments {
		offer, err := s.extractor.Extract(frag)
		if err != nil {
			run.ExtractionFailures++
			s.logger.Warn("Run %s: dropped fragment: %v", run.ID, err)
			continue
		}
		offers = append(offers, offer)
	}
	if len(offers) == 0 {
		run.Status = models.RunFailed
		run.Err = fmt.Errorf("all %d fragments failed extraction", len(fragments))
		return run
	}

	// cancellation before merge persists nothing
	if err := ctx.Err(); err != nil {
		run.Status = models.RunFailed
		run.Err = err
		return run
	}

	s.setState(run.ID, StateMerging)
	stamp := storage.MergeStamp{
		ScrapedAt:   s.clock.Now().Truncate(time.Second),
		Fingerprint: s.query.Fingerprint(),
	}
	result, err := s.store.Merge(ctx, offers, stamp)
	run.OffersCollected = result.Persisted
	run.WithinRunDupes = result.WithinRunDuplicates
	if err != nil {
		// data-integrity event: surfaced loudly, rows before the failure
		// stay committed
		s.logger.Error("Run %s: MERGE FAILED after %d rows: %v", run.ID, result.Persisted, err)
		run.Status = models.RunFailed
		run.Err = err
		return run
	}
	s.mirrorOffers(ctx, offers)

	s.setState(run.ID, StateAnalyzing)
	report, err := s.analyze(ctx)
	if err != nil {
		s.logger.Warn("Run %s: analysis failed: %v", run.ID, err)
	} else if len(report.Alerts) > 0 {
		s.setState(run.ID, StateNotifying)
		message := services.RenderAlertMessage(report)
		s.logger.Info("Run %s: %d alerts flagged", run.ID, len(report.Alerts))
		if err := s.notifier.Send(ctx, message); err != nil {
			s.logger.Warn("Run %s: notification failed: %v", run.ID, err)
		}
	}

	if run.ExtractionFailures > 0 {
		run.Status = models.RunPartial
	} else {
		run.Status = models.RunSuccess
	}
	return run
}

// fetchWithRetry attempts the fetch up to max_retries times, backing off
// backoff_factor^attempt seconds between transient failures
func (s *Scheduler) fetchWithRetry(ctx context.Context, run *models.SchedulerRun) ([]models.RawFragment, error) {
	s.setState(run.ID, StateFetching)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Fetch.MaxRetries; attempt++ {
		run.AttemptCount = attempt

		fragments, err := s.searcher.Search(ctx, s.query)
		if err == nil {
			return fragments, nil
		}
		lastErr = err

		if !fetcher.IsTransient(err) {
			s.logger.Error("Run %s: permanent fetch failure: %v", run.ID, err)
			return nil, err
		}
		if attempt == s.cfg.Fetch.MaxRetries {
			break
		}

		s.setState(run.ID, StateRetrying)
		backoff := time.Duration(math.Pow(s.cfg.Fetch.BackoffFactor, float64(attempt)) * float64(time.Second))
		s.logger.Warn("Run %s: attempt %d/%d failed (%v), retrying in %s",
			run.ID, attempt, s.cfg.Fetch.MaxRetries, err, backoff)
		if err := s.clock.Sleep(ctx, backoff); err != nil {
			return nil, err
		}
		s.setState(run.ID, StateFetching)
	}
	return nil, fmt.Errorf("all %d fetch attempts failed: %w", s.cfg.Fetch.MaxRetries, lastErr)
}

// mirrorOffers copies this run's unique offers to the secondary sink.
// The CSV history is the source of truth; mirror errors never fail a tick.
func (s *Scheduler) mirrorOffers(ctx context.Context, offers []*models.Offer) {
	if s.mirror == nil {
		return
	}
	seen := make(map[string]bool, len(offers))
	unique := make([]*models.Offer, 0, len(offers))
	for _, o := range offers {
		key := o.IdentityKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, o)
	}
	if err := s.mirror.Insert(ctx, unique); err != nil {
		s.logger.Warn("Mirror insert failed: %v", err)
	}
}

// analyze replays the cohort's history through the analyzer
func (s *Scheduler) analyze(ctx context.Context) (*models.Report, error) {
	fingerprint := s.query.Fingerprint()
	var history []models.Offer
	err := s.store.ReadHistory(ctx, storage.Filter{Fingerprint: fingerprint}, func(o models.Offer) error {
		history = append(history, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.analyzer.Analyze(history, fingerprint, s.clock.Now()), nil
}

func (s *Scheduler) finalize(run *models.SchedulerRun) {
	run.EndedAt = s.clock.Now()
	s.setState(run.ID, StateIdle)
	s.logger.Info("Run %s finished: status=%s offers=%d dupes=%d extraction_failures=%d attempts=%d took=%s",
		run.ID, run.Status, run.OffersCollected, run.WithinRunDupes,
		run.ExtractionFailures, run.AttemptCount, run.EndedAt.Sub(run.StartedAt))
}

// CronSpec translates the configured cadence into a cron expression
func CronSpec(cfg config.ScheduleConfig) (string, error) {
	switch cfg.Mode {
	case config.ScheduleHourly:
		return "0 * * * *", nil
	case config.ScheduleDaily:
		h, m, err := cfg.DailyTime()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", m, h), nil
	case config.ScheduleHours:
		spec := "0 "
		for i, h := range cfg.Hours {
			if i > 0 {
				spec += ","
			}
			spec += fmt.Sprintf("%d", h)
		}
		return spec + " * * *", nil
	default:
		return "", fmt.Errorf("unknown schedule mode %q", cfg.Mode)
	}
}

// RunForever fires ticks on the configured cadence until the context is
// cancelled. An overdue tick is skipped, never queued.
func (s *Scheduler) RunForever(ctx context.Context) error {
	spec, err := CronSpec(s.cfg.Schedule)
	if err != nil {
		return err
	}

	clog := cronLogger{logger: s.logger}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(clog),
		cron.Recover(clog),
	))
	if _, err := c.AddFunc(spec, func() {
		run := s.Tick(ctx)
		if run.Status == models.RunFailed {
			s.logger.Error("Scheduled run %s failed: %v", run.ID, run.Err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule %q: %w", spec, err)
	}

	s.logger.Info("Scheduler running with cadence %q (%s)", spec, s.cfg.Schedule.Mode)
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	s.logger.Info("Scheduler stopped")
	return nil
}

// cronLogger adapts utils.Logger to the cron logging interface
type cronLogger struct {
	logger *utils.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
