package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// errSuspended unwinds a workflow body after SleepUntil has parked the
// run. It is internal to the engine: bodies must propagate it, never
// swallow it.
var errSuspended = errors.New("workflow: run suspended")

// timerRecord is the step-log entry for a durable sleep. The deadline
// is memoized so a replayed body re-checks the original wall-clock
// target instead of recomputing it.
type timerRecord struct {
	Until time.Time `json:"until"`
}

// Context carries one execution of a workflow body. It provides the
// trigger payload, step memoization, and durable sleep.
type Context struct {
	context.Context

	run   *Run
	store RunStore
	steps map[string]json.RawMessage
	clock clock.Clock

	// parked is set once SleepUntil has persisted a suspension, so the
	// engine knows not to treat errSuspended as a failure.
	parked bool
}

// RunID returns the current run's ID.
func (c *Context) RunID() string { return c.run.ID }

// Workflow returns the name of the running definition.
func (c *Context) Workflow() string { return c.run.Workflow }

// TriggeredAt returns the time the run was created from its trigger
// event.
func (c *Context) TriggeredAt() time.Time { return c.run.CreatedAt }

// Input unmarshals the trigger payload into v.
func (c *Context) Input(v any) error {
	if err := json.Unmarshal(c.run.Payload, v); err != nil {
		return fmt.Errorf("workflow: unmarshal payload for run %s: %w", c.run.ID, err)
	}
	return nil
}

// Step executes fn and memoizes its result under name. On replay of a
// run whose log already holds name, the recorded result is returned
// and fn is not executed. A returned error from fn fails the current
// execution; the engine retries the run from this step.
func (c *Context) Step(name string, fn func(ctx context.Context) (any, error)) (json.RawMessage, error) {
	if cached, ok := c.steps[name]; ok {
		return cached, nil
	}

	out, err := fn(c.Context)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", name, err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("step %q: marshal output: %w", name, err)
	}
	if err := c.store.AppendStep(c.Context, c.run.ID, name, data, c.clock.Now()); err != nil {
		return nil, fmt.Errorf("step %q: record output: %w", name, err)
	}
	c.steps[name] = data
	return data, nil
}

// SleepUntil durably suspends the run until t. The deadline is
// persisted before control returns, so a crash during the sleep does
// not lose the schedule; any worker that later claims the run resumes
// it past this point. The sleep's name must be unique within the run.
func (c *Context) SleepUntil(name string, t time.Time) error {
	if cached, ok := c.steps[name]; ok {
		// Timer already scheduled; replay past it once it has fired.
		var rec timerRecord
		if err := json.Unmarshal(cached, &rec); err != nil {
			return fmt.Errorf("sleep %q: corrupt timer record: %w", name, err)
		}
		if !c.clock.Now().Before(rec.Until) {
			return nil
		}
		return c.park(rec.Until)
	}

	data, err := json.Marshal(timerRecord{Until: t})
	if err != nil {
		return fmt.Errorf("sleep %q: %w", name, err)
	}
	if err := c.store.AppendStep(c.Context, c.run.ID, name, data, c.clock.Now()); err != nil {
		return fmt.Errorf("sleep %q: record timer: %w", name, err)
	}
	c.steps[name] = data

	if !c.clock.Now().Before(t) {
		// Deadline already in the past; no need to park.
		return nil
	}
	return c.park(t)
}

// Sleep suspends the run until d past the trigger time. Anchoring on
// the trigger rather than the current clock keeps the deadline stable
// across retries of earlier steps.
func (c *Context) Sleep(name string, d time.Duration) error {
	return c.SleepUntil(name, c.run.CreatedAt.Add(d))
}

func (c *Context) park(until time.Time) error {
	if err := c.store.Park(c.Context, c.run.ID, until, 0, ""); err != nil {
		return fmt.Errorf("workflow: park run %s: %w", c.run.ID, err)
	}
	c.parked = true
	return errSuspended
}

// Step executes fn through ctx.Step and unmarshals the memoized result
// into T. This is the typed entry point workflow definitions use.
func Step[T any](ctx *Context, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	data, err := ctx.Step(name, func(stdctx context.Context) (any, error) {
		return fn(stdctx)
	})
	if err != nil {
		return zero, err
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, fmt.Errorf("step %q: unmarshal result: %w", name, err)
	}
	return result, nil
}
