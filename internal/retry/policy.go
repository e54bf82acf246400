// Package retry provides the backoff policy the workflow engine uses
// when re-parking a run after a step failure.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy controls how many times a run is attempted and how long it
// waits between attempts.
type Policy struct {
	// MaxAttempts includes the first attempt. Must be at least 1.
	MaxAttempts int

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Zero means uncapped.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64

	// Jitter in [0,1] randomizes each delay by up to that fraction,
	// spreading retries from runs that failed together.
	Jitter float64
}

// Default returns the engine's standard policy: 4 attempts with
// exponential backoff starting at 30 seconds.
func Default() *Policy {
	return &Policy{
		MaxAttempts: 4,
		BaseDelay:   30 * time.Second,
		MaxDelay:    10 * time.Minute,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// None returns a single-attempt policy.
func None() *Policy {
	return &Policy{MaxAttempts: 1, Multiplier: 1.0}
}

// Exhausted reports whether no further attempt should be made after
// the given number of completed attempts.
func (p *Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Delay returns how long to wait before the attempt following the
// given failed attempt (1-indexed). Attempt 1 waits BaseDelay.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		// Scale into [1-jitter, 1+jitter].
		f := 1 - p.Jitter + 2*p.Jitter*rand.Float64()
		d = time.Duration(float64(d) * f)
	}
	return d
}
