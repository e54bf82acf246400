package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

// Scheduler periodically claims due runs from the store and advances
// them on a bounded worker pool. Multiple schedulers may share one
// store; the atomic claim in RunStore.ClaimDue keeps them from
// double-executing a run within one poll cycle.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	batch    int
	workers  int
	clock    clock.Clock
	logger   *slog.Logger
}

// SchedulerOption configures the scheduler.
type SchedulerOption func(*Scheduler)

// WithPollInterval sets how often due runs are claimed.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

// WithBatchSize caps how many runs one poll claims.
func WithBatchSize(n int) SchedulerOption {
	return func(s *Scheduler) { s.batch = n }
}

// WithWorkers caps concurrent run executions.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) { s.workers = n }
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler for the given engine. The scheduler
// shares the engine's clock so mocked time moves both together.
func NewScheduler(engine *Engine, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		engine:   engine,
		interval: 5 * time.Second,
		batch:    50,
		workers:  8,
		clock:    engine.clock,
		logger:   engine.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls until ctx is cancelled. It returns ctx.Err() on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Info("workflow scheduler started",
		"interval", s.interval, "batch", s.batch, "workers", s.workers)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
	}
}

// Tick claims and executes one batch of due runs. It is exported so
// tests (and the serve command's drain path) can advance the engine
// without waiting on the poll ticker.
func (s *Scheduler) Tick(ctx context.Context) error {
	runs, err := s.engine.store.ClaimDue(ctx, s.clock.Now(), s.batch)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, run := range runs {
		run := run
		g.Go(func() error {
			s.engine.execute(gctx, run)
			return nil
		})
	}
	return g.Wait()
}
