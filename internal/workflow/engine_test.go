package workflow_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingup/pingup/internal/adapters/runstore"
	"github.com/pingup/pingup/internal/logging"
	"github.com/pingup/pingup/internal/retry"
	"github.com/pingup/pingup/internal/workflow"
)

// newTestEngine builds an engine and scheduler over a fresh in-memory
// store with a mocked clock. Tick drives execution directly; the poll
// ticker is never started.
func newTestEngine(t *testing.T, store workflow.RunStore, policy *retry.Policy) (*workflow.Engine, *workflow.Scheduler, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	engine := workflow.New(store,
		workflow.WithClock(mock),
		workflow.WithRetryPolicy(policy),
		workflow.WithLogger(logging.NewNop()),
	)
	scheduler := workflow.NewScheduler(engine, workflow.WithSchedulerLogger(logging.NewNop()))
	return engine, scheduler, mock
}

func TestEngine_RegisterRejectsDuplicateName(t *testing.T) {
	engine := workflow.New(runstore.NewMemory())

	def := workflow.Definition{
		Name:    "wf",
		Trigger: "evt",
		Body:    func(*workflow.Context) error { return nil },
	}
	require.NoError(t, engine.Register(def))
	require.Error(t, engine.Register(def))
}

func TestEngine_RegisterRejectsIncompleteDefinition(t *testing.T) {
	engine := workflow.New(runstore.NewMemory())

	assert.Error(t, engine.Register(workflow.Definition{Trigger: "evt"}))
	assert.Error(t, engine.Register(workflow.Definition{Name: "wf"}))
	assert.Error(t, engine.Register(workflow.Definition{Name: "wf", Trigger: "evt"}))
}

func TestEngine_EmitWithoutDefinitionIsDropped(t *testing.T) {
	store := runstore.NewMemory()
	engine, scheduler, _ := newTestEngine(t, store, retry.None())

	require.NoError(t, engine.Emit(context.Background(), "evt", map[string]string{"k": "v"}))
	require.NoError(t, scheduler.Tick(context.Background()))

	runs, err := store.ClaimDue(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngine_EmitRunsRegisteredBody(t *testing.T) {
	store := runstore.NewMemory()
	engine, scheduler, _ := newTestEngine(t, store, retry.None())

	var gotPayload string
	require.NoError(t, engine.Register(workflow.Definition{
		Name:    "wf",
		Trigger: "evt",
		Body: func(ctx *workflow.Context) error {
			var in map[string]string
			if err := ctx.Input(&in); err != nil {
				return err
			}
			gotPayload = in["k"]
			return nil
		},
	}))

	require.NoError(t, engine.Emit(context.Background(), "evt", map[string]string{"k": "v"}))
	require.NoError(t, scheduler.Tick(context.Background()))

	assert.Equal(t, "v", gotPayload)
}

func TestEngine_StepMemoizationAcrossRetries(t *testing.T) {
	store := runstore.NewMemory()
	policy := &retry.Policy{MaxAttempts: 3, BaseDelay: time.Minute, Multiplier: 1.0}
	engine, scheduler, mock := newTestEngine(t, store, policy)

	var firstCalls, secondCalls atomic.Int64
	failSecond := atomic.Bool{}
	failSecond.Store(true)

	require.NoError(t, engine.Register(workflow.Definition{
		Name:    "wf",
		Trigger: "evt",
		Body: func(ctx *workflow.Context) error {
			_, err := workflow.Step(ctx, "first", func(context.Context) (string, error) {
				firstCalls.Add(1)
				return "done", nil
			})
			if err != nil {
				return err
			}
			_, err = workflow.Step(ctx, "second", func(context.Context) (string, error) {
				secondCalls.Add(1)
				if failSecond.Load() {
					return "", errors.New("transient")
				}
				return "done", nil
			})
			return err
		},
	}))

	require.NoError(t, engine.Emit(context.Background(), "evt", nil))
	require.NoError(t, scheduler.Tick(context.Background()))

	assert.Equal(t, int64(1), firstCalls.Load())
	assert.Equal(t, int64(1), secondCalls.Load())

	// Retry after the backoff window: the first step replays from the
	// log, the second executes again and succeeds.
	failSecond.Store(false)
	mock.Add(2 * time.Minute)
	require.NoError(t, scheduler.Tick(context.Background()))

	assert.Equal(t, int64(1), firstCalls.Load(), "memoized step must not re-execute")
	assert.Equal(t, int64(2), secondCalls.Load())

	// Nothing left to claim.
	runs, err := store.ClaimDue(context.Background(), mock.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngine_SleepSuspendsUntilDeadline(t *testing.T) {
	store := runstore.NewMemory()
	engine, scheduler, mock := newTestEngine(t, store, retry.None())

	var before, after atomic.Int64
	require.NoError(t, engine.Register(workflow.Definition{
		Name:    "wf",
		Trigger: "evt",
		Body: func(ctx *workflow.Context) error {
			if _, err := workflow.Step(ctx, "before", func(context.Context) (string, error) {
				before.Add(1)
				return "ok", nil
			}); err != nil {
				return err
			}
			if err := ctx.Sleep("wait", 24*time.Hour); err != nil {
				return err
			}
			_, err := workflow.Step(ctx, "after", func(context.Context) (string, error) {
				after.Add(1)
				return "ok", nil
			})
			return err
		},
	}))

	require.NoError(t, engine.Emit(context.Background(), "evt", nil))
	require.NoError(t, scheduler.Tick(context.Background()))

	assert.Equal(t, int64(1), before.Load())
	assert.Equal(t, int64(0), after.Load(), "post-sleep step ran before the deadline")

	// Too early: the run is not yet due.
	mock.Add(12 * time.Hour)
	require.NoError(t, scheduler.Tick(context.Background()))
	assert.Equal(t, int64(0), after.Load())

	// Past the deadline the run resumes after the sleep.
	mock.Add(13 * time.Hour)
	require.NoError(t, scheduler.Tick(context.Background()))
	assert.Equal(t, int64(1), before.Load(), "pre-sleep step must replay from the log")
	assert.Equal(t, int64(1), after.Load())
}

func TestEngine_SuspendedRunResumesInNewProcess(t *testing.T) {
	store := runstore.NewMemory()
	engine, scheduler, mock := newTestEngine(t, store, retry.None())

	def := func(before, after *atomic.Int64) workflow.Definition {
		return workflow.Definition{
			Name:    "wf",
			Trigger: "evt",
			Body: func(ctx *workflow.Context) error {
				if _, err := workflow.Step(ctx, "before", func(context.Context) (string, error) {
					before.Add(1)
					return "ok", nil
				}); err != nil {
					return err
				}
				if err := ctx.Sleep("wait", time.Hour); err != nil {
					return err
				}
				_, err := workflow.Step(ctx, "after", func(context.Context) (string, error) {
					after.Add(1)
					return "ok", nil
				})
				return err
			},
		}
	}

	var before1, after1 atomic.Int64
	require.NoError(t, engine.Register(def(&before1, &after1)))
	require.NoError(t, engine.Emit(context.Background(), "evt", nil))
	require.NoError(t, scheduler.Tick(context.Background()))
	require.Equal(t, int64(1), before1.Load())
	require.Equal(t, int64(0), after1.Load())

	// A new engine over the same store stands in for a restarted
	// process. Its clock starts past the deadline.
	mock2 := clock.NewMock()
	mock2.Set(mock.Now().Add(2 * time.Hour))
	engine2 := workflow.New(store,
		workflow.WithClock(mock2),
		workflow.WithLogger(logging.NewNop()),
	)
	var before2, after2 atomic.Int64
	require.NoError(t, engine2.Register(def(&before2, &after2)))
	scheduler2 := workflow.NewScheduler(engine2, workflow.WithSchedulerLogger(logging.NewNop()))
	require.NoError(t, scheduler2.Tick(context.Background()))

	assert.Equal(t, int64(0), before2.Load(), "logged step re-executed after restart")
	assert.Equal(t, int64(1), after2.Load())
}

func TestEngine_RetryExhaustionFailsRun(t *testing.T) {
	store := runstore.NewMemory()
	policy := &retry.Policy{MaxAttempts: 2, BaseDelay: time.Minute, Multiplier: 1.0}
	engine, scheduler, mock := newTestEngine(t, store, policy)

	var calls atomic.Int64
	require.NoError(t, engine.Register(workflow.Definition{
		Name:    "wf",
		Trigger: "evt",
		Body: func(ctx *workflow.Context) error {
			_, err := workflow.Step(ctx, "boom", func(context.Context) (string, error) {
				calls.Add(1)
				return "", errors.New("permanent")
			})
			return err
		},
	}))

	require.NoError(t, engine.Emit(context.Background(), "evt", nil))
	require.NoError(t, scheduler.Tick(context.Background()))
	require.Equal(t, int64(1), calls.Load())

	mock.Add(2 * time.Minute)
	require.NoError(t, scheduler.Tick(context.Background()))
	require.Equal(t, int64(2), calls.Load())

	// The budget is spent; the run never becomes due again.
	mock.Add(24 * time.Hour)
	require.NoError(t, scheduler.Tick(context.Background()))
	assert.Equal(t, int64(2), calls.Load())
}

func TestEngine_DedupeKeySuppressesDuplicateRuns(t *testing.T) {
	store := runstore.NewMemory()
	engine, scheduler, _ := newTestEngine(t, store, retry.None())

	var runs atomic.Int64
	require.NoError(t, engine.Register(workflow.Definition{
		Name:    "wf",
		Trigger: "evt",
		Body: func(ctx *workflow.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	ctx := context.Background()
	require.NoError(t, engine.Emit(ctx, "evt", nil, workflow.WithDedupeKey("record-1")))
	require.NoError(t, engine.Emit(ctx, "evt", nil, workflow.WithDedupeKey("record-1")))
	require.NoError(t, engine.Emit(ctx, "evt", nil, workflow.WithDedupeKey("record-2")))
	require.NoError(t, scheduler.Tick(ctx))

	assert.Equal(t, int64(2), runs.Load())
}

func TestEngine_AttemptsResetIsNotImplicit(t *testing.T) {
	// A run that fails, retries, and then sleeps keeps its suspended
	// status rather than failed, regardless of earlier attempts.
	store := runstore.NewMemory()
	policy := &retry.Policy{MaxAttempts: 3, BaseDelay: time.Minute, Multiplier: 1.0}
	engine, scheduler, mock := newTestEngine(t, store, policy)

	fail := atomic.Bool{}
	fail.Store(true)
	var after atomic.Int64
	require.NoError(t, engine.Register(workflow.Definition{
		Name:    "wf",
		Trigger: "evt",
		Body: func(ctx *workflow.Context) error {
			if _, err := workflow.Step(ctx, "flaky", func(context.Context) (string, error) {
				if fail.Load() {
					return "", errors.New("transient")
				}
				return "ok", nil
			}); err != nil {
				return err
			}
			if err := ctx.Sleep("wait", time.Hour); err != nil {
				return err
			}
			_, err := workflow.Step(ctx, "after", func(context.Context) (string, error) {
				after.Add(1)
				return "ok", nil
			})
			return err
		},
	}))

	require.NoError(t, engine.Emit(context.Background(), "evt", nil))
	require.NoError(t, scheduler.Tick(context.Background()))

	fail.Store(false)
	mock.Add(2 * time.Minute)
	require.NoError(t, scheduler.Tick(context.Background()))
	assert.Equal(t, int64(0), after.Load(), "run should be sleeping, not done")

	mock.Add(2 * time.Hour)
	require.NoError(t, scheduler.Tick(context.Background()))
	assert.Equal(t, int64(1), after.Load())
}

func TestEngine_OrphanedClaimReclaimedAfterRestart(t *testing.T) {
	// A worker that claims a run and dies before settling it must not
	// strand the run: the claim lease expires and a later scheduler
	// picks the run up again.
	store := runstore.NewMemory()
	first, _, mock := newTestEngine(t, store, retry.None())

	require.NoError(t, first.Register(workflow.Definition{
		Name:    "wf",
		Trigger: "evt",
		Body: func(ctx *workflow.Context) error {
			t.Error("first process should never execute the run")
			return nil
		},
	}))
	require.NoError(t, first.Emit(context.Background(), "evt", nil))

	// The first worker claims the run and then dies.
	claimed, err := store.ClaimDue(context.Background(), mock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// A fresh engine and scheduler over the same store stand in for
	// the restarted process.
	second, scheduler, mock2 := newTestEngine(t, store, retry.None())
	var executed atomic.Int64
	require.NoError(t, second.Register(workflow.Definition{
		Name:    "wf",
		Trigger: "evt",
		Body: func(ctx *workflow.Context) error {
			executed.Add(1)
			return nil
		},
	}))

	mock2.Add(48 * time.Hour)
	require.NoError(t, scheduler.Tick(context.Background()))

	assert.Equal(t, int64(1), executed.Load(), "run never re-claimed after restart")
	got, err := store.GetRun(context.Background(), claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, got.Status)
}

func TestEngine_ShutdownMidBodyRequeuesViaLease(t *testing.T) {
	// Shutdown cancelling the tick context mid-body must neither burn
	// a retry attempt nor strand the run: it stays claimed until the
	// lease expires, then runs to completion.
	store := runstore.NewMemory()
	engine, scheduler, mock := newTestEngine(t, store, retry.None())

	ctx, cancel := context.WithCancel(context.Background())
	var executions atomic.Int64
	require.NoError(t, engine.Register(workflow.Definition{
		Name:    "wf",
		Trigger: "evt",
		Body: func(wctx *workflow.Context) error {
			if executions.Add(1) == 1 {
				cancel()
				return wctx.Err()
			}
			return nil
		},
	}))

	require.NoError(t, engine.Emit(context.Background(), "evt", nil))
	require.NoError(t, scheduler.Tick(ctx))

	runs, err := store.ClaimDue(context.Background(), mock.Now(), 0)
	require.NoError(t, err)
	require.Empty(t, runs, "interrupted run should stay leased, not requeue immediately")

	mock.Add(store.ClaimLease + time.Minute)
	require.NoError(t, scheduler.Tick(context.Background()))

	assert.Equal(t, int64(2), executions.Load())
	claimedAgain, err := store.ClaimDue(context.Background(), mock.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, claimedAgain)

	// retry.None allows a single attempt; the lease path must not
	// have consumed it.
	for _, run := range runsByStatus(t, store, workflow.StatusCompleted) {
		assert.Equal(t, 0, run.Attempts)
	}
}

// runsByStatus is a small helper for asserting on terminal run state.
func runsByStatus(t *testing.T, store *runstore.Memory, status workflow.Status) []*workflow.Run {
	t.Helper()
	var out []*workflow.Run
	for _, run := range store.Snapshot() {
		if run.Status == status {
			out = append(out, run)
		}
	}
	require.NotEmpty(t, out, "no runs in status %s", status)
	return out
}
