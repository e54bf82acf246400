// Package runstore provides RunStore implementations for the workflow
// engine: SQLite for production, in-memory for tests.
package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pingup/pingup/internal/workflow"
)

// DefaultClaimLease is how long a claimed run stays invisible to
// ClaimDue before it is presumed orphaned and handed out again.
const DefaultClaimLease = 5 * time.Minute

// Memory is an in-memory RunStore. It mirrors the SQLite semantics,
// including dedupe keys, atomic claims, and lease reclaim, and is safe
// for concurrent use.
type Memory struct {
	// ClaimLease bounds how long a claim is honored before the run is
	// reclaimable. Tests shorten it.
	ClaimLease time.Duration

	mu     sync.Mutex
	runs   map[string]*workflow.Run
	steps  map[string]map[string]json.RawMessage
	dedupe map[string]string // workflow+"\x00"+key -> run ID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		ClaimLease: DefaultClaimLease,
		runs:       make(map[string]*workflow.Run),
		steps:      make(map[string]map[string]json.RawMessage),
		dedupe:     make(map[string]string),
	}
}

// CreateRun implements workflow.RunStore.
func (m *Memory) CreateRun(_ context.Context, run *workflow.Run) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.DedupeKey != "" {
		key := run.Workflow + "\x00" + run.DedupeKey
		if _, exists := m.dedupe[key]; exists {
			return false, nil
		}
		m.dedupe[key] = run.ID
	}

	cp := *run
	m.runs[run.ID] = &cp
	m.steps[run.ID] = make(map[string]json.RawMessage)
	return true, nil
}

// ClaimDue implements workflow.RunStore.
func (m *Memory) ClaimDue(_ context.Context, now time.Time, limit int) ([]*workflow.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reclaimBefore := now.Add(-m.ClaimLease)
	var due []*workflow.Run
	for _, run := range m.runs {
		switch run.Status {
		case workflow.StatusPending:
			due = append(due, run)
		case workflow.StatusSuspended:
			if run.SuspendUntil != nil && !run.SuspendUntil.After(now) {
				due = append(due, run)
			}
		case workflow.StatusRunning:
			// Lease expired; the claiming worker is presumed dead.
			if !run.UpdatedAt.After(reclaimBefore) {
				due = append(due, run)
			}
		}
	}
	// Oldest first, matching the SQLite ORDER BY.
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*workflow.Run, 0, len(due))
	for _, run := range due {
		run.Status = workflow.StatusRunning
		run.SuspendUntil = nil
		run.UpdatedAt = now
		cp := *run
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

// Park implements workflow.RunStore.
func (m *Memory) Park(_ context.Context, runID string, until time.Time, attempts int, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return workflow.ErrRunNotFound
	}
	u := until
	run.Status = workflow.StatusSuspended
	run.SuspendUntil = &u
	run.Attempts = attempts
	run.LastError = lastErr
	return nil
}

// Complete implements workflow.RunStore.
func (m *Memory) Complete(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return workflow.ErrRunNotFound
	}
	run.Status = workflow.StatusCompleted
	run.SuspendUntil = nil
	run.LastError = ""
	return nil
}

// Fail implements workflow.RunStore.
func (m *Memory) Fail(_ context.Context, runID string, attempts int, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return workflow.ErrRunNotFound
	}
	run.Status = workflow.StatusFailed
	run.SuspendUntil = nil
	run.Attempts = attempts
	run.LastError = lastErr
	return nil
}

// AppendStep implements workflow.RunStore.
func (m *Memory) AppendStep(_ context.Context, runID, name string, output json.RawMessage, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log, ok := m.steps[runID]
	if !ok {
		return workflow.ErrRunNotFound
	}
	if _, dup := log[name]; dup {
		return fmt.Errorf("runstore: step %q already recorded for run %s", name, runID)
	}
	log[name] = append(json.RawMessage(nil), output...)
	return nil
}

// Snapshot returns a copy of every run. Tests use it to assert on
// state the RunStore interface has no reason to expose.
func (m *Memory) Snapshot() []*workflow.Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*workflow.Run, 0, len(m.runs))
	for _, run := range m.runs {
		cp := *run
		out = append(out, &cp)
	}
	return out
}

// Steps implements workflow.RunStore.
func (m *Memory) Steps(_ context.Context, runID string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log, ok := m.steps[runID]
	if !ok {
		return nil, workflow.ErrRunNotFound
	}
	out := make(map[string]json.RawMessage, len(log))
	for k, v := range log {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out, nil
}

// GetRun implements workflow.RunStore.
func (m *Memory) GetRun(_ context.Context, runID string) (*workflow.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, workflow.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}
