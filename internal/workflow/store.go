package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrRunNotFound is returned by stores for unknown run IDs.
var ErrRunNotFound = errors.New("workflow: run not found")

// RunStore persists runs and their step logs. All workflow state lives
// in the store, never in process memory across a suspension, so any
// process sharing the store can claim and resume a parked run.
type RunStore interface {
	// CreateRun persists a new run. When the run carries a non-empty
	// DedupeKey and a run for the same (workflow, key) already exists,
	// no new run is created and CreateRun reports false.
	CreateRun(ctx context.Context, run *Run) (bool, error)

	// ClaimDue atomically transitions up to limit runs that are
	// pending, or suspended with SuspendUntil <= now, into
	// StatusRunning and returns them. A claim is a lease, not
	// permanent ownership: a run still running when its lease expires
	// is presumed orphaned by a dead worker and is returned again, so
	// a process crash between claim and settle cannot strand it.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Run, error)

	// Park transitions a run to StatusSuspended until the given time,
	// recording the attempt count and last error (empty for a durable
	// sleep, non-empty for a retry backoff).
	Park(ctx context.Context, runID string, until time.Time, attempts int, lastErr string) error

	// Complete marks a run completed.
	Complete(ctx context.Context, runID string) error

	// Fail marks a run failed after its retry budget is exhausted.
	Fail(ctx context.Context, runID string, attempts int, lastErr string) error

	// AppendStep records a memoized step result. Appending a name that
	// is already logged for the run is an error.
	AppendStep(ctx context.Context, runID, name string, output json.RawMessage, at time.Time) error

	// Steps returns the run's step log keyed by step name.
	Steps(ctx context.Context, runID string) (map[string]json.RawMessage, error)

	// GetRun returns a run by ID, or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*Run, error)
}
