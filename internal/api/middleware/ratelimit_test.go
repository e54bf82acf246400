package middleware

import (
	"testing"
	"time"
)

func TestSubjectLimiter_BurstThenReject(t *testing.T) {
	l := NewSubjectLimiter(1, 2, time.Minute)
	now := time.Now()

	if !l.Allow("alice", now) || !l.Allow("alice", now) {
		t.Fatal("burst capacity rejected")
	}
	if l.Allow("alice", now) {
		t.Error("over-budget request allowed")
	}

	// Tokens refill with time.
	if !l.Allow("alice", now.Add(time.Second)) {
		t.Error("refilled token rejected")
	}
}

func TestSubjectLimiter_KeysAreIndependent(t *testing.T) {
	l := NewSubjectLimiter(1, 1, time.Minute)
	now := time.Now()

	if !l.Allow("alice", now) {
		t.Fatal("first request rejected")
	}
	if l.Allow("alice", now) {
		t.Error("alice over budget but allowed")
	}
	if !l.Allow("bob", now) {
		t.Error("bob throttled by alice's budget")
	}
}

func TestSubjectLimiter_NilAllowsEverything(t *testing.T) {
	var l *SubjectLimiter
	for i := 0; i < 100; i++ {
		if !l.Allow("anyone", time.Now()) {
			t.Fatal("nil limiter must not throttle")
		}
	}

	if NewSubjectLimiter(0, 5, time.Minute) != nil {
		t.Error("non-positive rps should disable limiting")
	}
}

func TestSubjectLimiter_EmptyKeyBypasses(t *testing.T) {
	l := NewSubjectLimiter(1, 1, time.Minute)
	now := time.Now()
	for i := 0; i < 10; i++ {
		if !l.Allow("", now) {
			t.Fatal("unauthenticated key must not be throttled here")
		}
	}
}

func TestSubjectLimiter_EvictsIdleEntries(t *testing.T) {
	l := NewSubjectLimiter(1, 1, time.Minute)
	now := time.Now()

	l.Allow("idle-subject", now)

	// Sweeps run every 512 hits; everything idle past the TTL goes.
	later := now.Add(2 * time.Minute)
	for i := 0; i < 512; i++ {
		l.Allow("busy-subject", later)
	}

	l.mu.Lock()
	_, stillThere := l.byKey["idle-subject"]
	l.mu.Unlock()
	if stillThere {
		t.Error("idle entry survived the sweep")
	}
}
