package retry

import (
	"testing"
	"time"
)

func TestPolicy_Exhausted(t *testing.T) {
	p := &Policy{MaxAttempts: 3}

	for attempts, want := range map[int]bool{0: false, 1: false, 2: false, 3: true, 4: true} {
		if got := p.Exhausted(attempts); got != want {
			t.Errorf("Exhausted(%d) = %v, want %v", attempts, got, want)
		}
	}
}

func TestPolicy_DelayGrowsExponentially(t *testing.T) {
	p := &Policy{
		BaseDelay:  time.Second,
		Multiplier: 2.0,
	}

	cases := map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
	}
	for attempt, want := range cases {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestPolicy_DelayCapped(t *testing.T) {
	p := &Policy{
		BaseDelay:  time.Minute,
		Multiplier: 10.0,
		MaxDelay:   5 * time.Minute,
	}

	if got := p.Delay(4); got != 5*time.Minute {
		t.Errorf("Delay(4) = %v, want cap of 5m", got)
	}
}

func TestPolicy_DelayJitterBounds(t *testing.T) {
	p := &Policy{
		BaseDelay:  10 * time.Second,
		Multiplier: 1.0,
		Jitter:     0.1,
	}

	lo := 9 * time.Second
	hi := 11 * time.Second
	for i := 0; i < 100; i++ {
		d := p.Delay(1)
		if d < lo || d > hi {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, lo, hi)
		}
	}
}

func TestPolicy_DelayNonPositiveAttempt(t *testing.T) {
	p := Default()
	if got := p.Delay(0); got != 0 {
		t.Errorf("Delay(0) = %v, want 0", got)
	}
}
