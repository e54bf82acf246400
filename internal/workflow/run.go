// Package workflow implements the durable workflow engine: named,
// memoized steps, durable sleep-until suspension, and a scheduler that
// claims due runs and advances them with at-least-once semantics.
//
// A workflow body is replayed from the top on every resume; steps whose
// names are already in the run's step log return their recorded result
// instead of executing again. Step functions must therefore be
// idempotent; the engine cannot verify that contract, only honor it.
package workflow

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of one workflow run.
type Status string

const (
	// StatusPending marks a run that is eligible for immediate claim.
	StatusPending Status = "pending"
	// StatusRunning marks a run claimed by a worker.
	StatusRunning Status = "running"
	// StatusSuspended marks a run parked until SuspendUntil.
	StatusSuspended Status = "suspended"
	// StatusCompleted marks a run whose body returned without error.
	StatusCompleted Status = "completed"
	// StatusFailed marks a run that exhausted its retry budget.
	StatusFailed Status = "failed"
)

// Run is one invocation of a workflow definition. The engine
// exclusively owns run state; definitions only describe the step
// sequence.
type Run struct {
	ID           string
	Workflow     string
	TriggerEvent string
	// DedupeKey deduplicates runs created from redelivered trigger
	// events. Empty means no deduplication.
	DedupeKey    string
	Payload      json.RawMessage
	Status       Status
	SuspendUntil *time.Time
	// Attempts counts consecutive failed executions since the run last
	// made progress. Reset whenever a step is logged or a sleep parks
	// the run.
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StepResult is one memoized entry in a run's step log.
type StepResult struct {
	RunID       string
	Name        string
	Output      json.RawMessage
	CompletedAt time.Time
}
