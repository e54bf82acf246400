package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/pingup/pingup/internal/metrics"
	"github.com/pingup/pingup/internal/retry"
)

// Definition describes one workflow: a trigger event name and a body
// of Step / SleepUntil calls. Bodies must be deterministic between the
// step calls; all side effects and all nondeterminism belong inside
// steps.
type Definition struct {
	// Name uniquely identifies the definition and its runs.
	Name string
	// Trigger is the event name whose occurrences start a run.
	Trigger string
	// Body is replayed from the top on every claim of a run.
	Body func(ctx *Context) error
}

// Engine owns run state: it creates runs from emitted events and
// advances claimed runs one execution at a time. Runs are guaranteed
// at-least-once execution per step; exactly-once is out of scope.
type Engine struct {
	store   RunStore
	clock   clock.Clock
	retry   *retry.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	defs      map[string]Definition
	byTrigger map[string][]Definition
}

// Option configures the engine.
type Option func(*Engine)

// WithClock sets the engine clock. Tests use a mock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRetryPolicy sets the retry policy applied to failing runs.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the engine metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine over the given run store.
func New(store RunStore, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		clock:     clock.New(),
		retry:     retry.Default(),
		logger:    slog.Default(),
		metrics:   metrics.NewNop(),
		defs:      make(map[string]Definition),
		byTrigger: make(map[string][]Definition),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a definition. Definition names must be unique.
func (e *Engine) Register(def Definition) error {
	if def.Name == "" || def.Trigger == "" || def.Body == nil {
		return errors.New("workflow: definition needs a name, a trigger, and a body")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.defs[def.Name]; exists {
		return fmt.Errorf("workflow: definition %q already registered", def.Name)
	}
	e.defs[def.Name] = def
	e.byTrigger[def.Trigger] = append(e.byTrigger[def.Trigger], def)
	return nil
}

// EmitOption configures one Emit call.
type EmitOption func(*emitOpts)

type emitOpts struct {
	dedupeKey string
}

// WithDedupeKey deduplicates runs created from redelivered events: at
// most one run per (definition, key) is ever created. Callers pass the
// triggering record's ID.
func WithDedupeKey(key string) EmitOption {
	return func(o *emitOpts) { o.dedupeKey = key }
}

// Emit raises a named event. One run per definition registered for the
// event is persisted before Emit returns, which is what makes triggers
// at-least-once: an event acknowledged here survives a crash. Events
// with no matching definition are dropped silently.
func (e *Engine) Emit(ctx context.Context, event string, payload any, opts ...EmitOption) error {
	var o emitOpts
	for _, opt := range opts {
		opt(&o)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("workflow: marshal payload for event %q: %w", event, err)
	}

	e.mu.RLock()
	defs := e.byTrigger[event]
	e.mu.RUnlock()

	now := e.clock.Now()
	for _, def := range defs {
		run := &Run{
			ID:           uuid.NewString(),
			Workflow:     def.Name,
			TriggerEvent: event,
			DedupeKey:    o.dedupeKey,
			Payload:      data,
			Status:       StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		created, err := e.store.CreateRun(ctx, run)
		if err != nil {
			return fmt.Errorf("workflow: create run for %q: %w", def.Name, err)
		}
		if !created {
			e.logger.Debug("duplicate trigger ignored",
				"workflow", def.Name, "event", event, "dedupe_key", o.dedupeKey)
			continue
		}
		e.metrics.RunsStarted.WithLabelValues(def.Name).Inc()
		e.logger.Info("workflow run created",
			"workflow", def.Name, "run_id", run.ID, "event", event)
	}
	return nil
}

// execute advances one claimed run: it replays the body against the
// persisted step log, then settles the run as suspended, completed,
// re-parked for retry, or failed. Settle writes use a context that
// survives shutdown cancellation; a claimed run must never be left
// running because the write recording its outcome was cancelled.
func (e *Engine) execute(ctx context.Context, run *Run) {
	settleCtx := context.WithoutCancel(ctx)

	e.mu.RLock()
	def, ok := e.defs[run.Workflow]
	e.mu.RUnlock()
	if !ok {
		// A run for a definition this process doesn't know. Leave it
		// failed rather than poisoning the claim loop forever.
		e.logger.Error("claimed run for unknown workflow", "workflow", run.Workflow, "run_id", run.ID)
		_ = e.store.Fail(settleCtx, run.ID, run.Attempts, "unknown workflow definition")
		return
	}

	steps, err := e.store.Steps(ctx, run.ID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Error("failed to load step log", "run_id", run.ID, "error", err)
		e.park(settleCtx, run, fmt.Errorf("load step log: %w", err))
		return
	}

	wctx := &Context{
		Context: ctx,
		run:     run,
		store:   e.store,
		steps:   steps,
		clock:   e.clock,
	}

	err = def.Body(wctx)
	switch {
	case err == nil:
		if cerr := e.store.Complete(settleCtx, run.ID); cerr != nil {
			e.logger.Error("failed to complete run", "run_id", run.ID, "error", cerr)
			return
		}
		e.metrics.RunsCompleted.WithLabelValues(run.Workflow).Inc()
		e.logger.Info("workflow run completed", "workflow", run.Workflow, "run_id", run.ID)

	case errors.Is(err, errSuspended) && wctx.parked:
		e.logger.Debug("workflow run suspended", "workflow", run.Workflow, "run_id", run.ID)

	default:
		if ctx.Err() != nil {
			// Shutdown interrupted the body. Leave the run running
			// with its attempt count intact; the claim lease returns
			// it to the next scheduler.
			e.logger.Warn("workflow run interrupted, lease will requeue",
				"workflow", run.Workflow, "run_id", run.ID, "error", err)
			return
		}
		e.park(settleCtx, run, err)
	}
}

// park handles a failed execution: it either re-parks the run with a
// backoff delay or, once the retry budget is exhausted, marks it
// failed. These are background side effects; exhaustion is logged and
// counted, never surfaced to a user.
func (e *Engine) park(ctx context.Context, run *Run, cause error) {
	attempts := run.Attempts + 1
	if e.retry.Exhausted(attempts) {
		if err := e.store.Fail(ctx, run.ID, attempts, cause.Error()); err != nil {
			e.logger.Error("failed to mark run failed", "run_id", run.ID, "error", err)
			return
		}
		e.metrics.RunsFailed.WithLabelValues(run.Workflow).Inc()
		e.logger.Error("workflow run failed",
			"workflow", run.Workflow, "run_id", run.ID, "attempts", attempts, "error", cause)
		return
	}

	until := e.clock.Now().Add(e.retry.Delay(attempts))
	if err := e.store.Park(ctx, run.ID, until, attempts, cause.Error()); err != nil {
		e.logger.Error("failed to park run for retry", "run_id", run.ID, "error", err)
		return
	}
	e.metrics.StepRetries.WithLabelValues(run.Workflow).Inc()
	e.logger.Warn("workflow run will retry",
		"workflow", run.Workflow, "run_id", run.ID, "attempts", attempts,
		"retry_at", until, "error", cause)
}
