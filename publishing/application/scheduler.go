package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// WakeSignal lets API calls nudge the scheduler when an entry becomes due before
// the next tick. Implementations fan the signal out across processes.
type WakeSignal interface {
	Publish(ctx context.Context) error
	Subscribe(ctx context.Context, onWake func()) error
}

type SchedulerConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	// StaleAfter is how long an entry may stay Processing before a tick releases it.
	// Zero disables the release.
	StaleAfter time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// TickReport counts what one tick did.
type TickReport struct {
	Due       int `json:"due"`
	Published int `json:"published"`
	Retried   int `json:"retried"`
	Requeued  int `json:"requeued"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
	Released  int `json:"released"`
}

func (r *TickReport) add(res ProcessResult) {
	switch res.Outcome {
	case OutcomePublished:
		r.Published++
	case OutcomeRetry:
		r.Retried++
	case OutcomeRequeued:
		r.Requeued++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	}
}

type SchedulerOption func(*SchedulerLoop)

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *SchedulerLoop) { s.now = now }
}

func WithWakeSignal(signal WakeSignal) SchedulerOption {
	return func(s *SchedulerLoop) { s.signal = signal }
}

// SchedulerLoop ticks on an interval, finds due entries and hands each to the
// coordinator with bounded concurrency.
type SchedulerLoop struct {
	cfg         SchedulerConfig
	scanner     *DuePostScanner
	coordinator *PublishCoordinator
	signal      WakeSignal
	now         func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	tickMu sync.Mutex
	wake   chan struct{}
}

func NewSchedulerLoop(cfg SchedulerConfig, scanner *DuePostScanner, coordinator *PublishCoordinator, opts ...SchedulerOption) *SchedulerLoop {
	s := &SchedulerLoop{
		cfg:         cfg.withDefaults(),
		scanner:     scanner,
		coordinator: coordinator,
		now:         time.Now,
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop and runs a first tick right away. Calling Start on a
// running or disabled loop does nothing.
func (s *SchedulerLoop) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		logrus.Info("[SCHEDULER] disabled by configuration")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	if s.signal != nil {
		if err := s.signal.Subscribe(loopCtx, s.Wake); err != nil {
			logrus.WithError(err).Warn("[SCHEDULER] wake signal unavailable, relying on interval only")
		}
	}

	go s.run(loopCtx, s.done)
	logrus.Infof("[SCHEDULER] started (interval=%s batch=%d concurrency=%d)", s.cfg.Interval, s.cfg.BatchSize, s.cfg.Concurrency)
}

// Stop cancels the loop and waits for the in-flight tick to return.
func (s *SchedulerLoop) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done
	logrus.Info("[SCHEDULER] stopped")
}

func (s *SchedulerLoop) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wake asks the loop for an extra tick. Requests coalesce while one is pending.
func (s *SchedulerLoop) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *SchedulerLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.safeTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeTick(ctx)
		case <-s.wake:
			s.safeTick(ctx)
		}
	}
}

func (s *SchedulerLoop) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[SCHEDULER] panic in tick: %v", r)
		}
	}()
	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("[SCHEDULER] tick failed, will retry on the next one")
	}
}

// Tick runs one scan and processes every due entry. A failing entry never
// prevents the others in the batch from being attempted.
func (s *SchedulerLoop) Tick(ctx context.Context) (TickReport, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	var report TickReport
	if s.cfg.StaleAfter > 0 {
		released, err := s.coordinator.ReleaseStale(ctx, s.cfg.StaleAfter, s.cfg.BatchSize)
		if err != nil {
			logrus.WithError(err).Error("[SCHEDULER] failed to release stale entries")
		}
		report.Released = released
	}

	due, err := s.scanner.FindDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("scan due entries: %w", err)
	}
	report.Due = len(due)
	if len(due) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(s.cfg.Concurrency)
	for _, entry := range due {
		entry := entry
		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					logrus.Errorf("[SCHEDULER] panic while processing entry %s: %v", entry.ID, r)
					mu.Lock()
					report.Errors++
					mu.Unlock()
				}
			}()

			res, err := s.coordinator.Process(ctx, entry)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logrus.WithError(err).Errorf("[SCHEDULER] entry %s could not be processed", entry.ID)
				report.Errors++
				return
			}
			report.add(res)
		})
	}
	p.Wait()

	logrus.Infof("[SCHEDULER] tick: due=%d published=%d retried=%d requeued=%d failed=%d skipped=%d errors=%d",
		report.Due, report.Published, report.Retried, report.Requeued, report.Failed, report.Skipped, report.Errors)
	return report, nil
}
