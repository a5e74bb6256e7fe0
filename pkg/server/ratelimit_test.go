package server

import (
	"testing"
	"time"
)

// testClock drives a RateLimiter with a controllable current time.
type testClock struct {
	current time.Time
}

func (c *testClock) now() time.Time { return c.current }

func (c *testClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestLimiter(window time.Duration) (*RateLimiter, *testClock) {
	clock := &testClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(window)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterAllowsFirstAction(t *testing.T) {
	rl, _ := newTestLimiter(5 * time.Second)

	if !rl.Allow("10.0.0.1") {
		t.Fatal("First action from an origin was rejected")
	}
}

func TestRateLimiterRejectsInsideWindow(t *testing.T) {
	rl, clock := newTestLimiter(5 * time.Second)

	if !rl.Allow("10.0.0.1") {
		t.Fatal("First action rejected")
	}

	clock.advance(4999 * time.Millisecond)
	if rl.Allow("10.0.0.1") {
		t.Error("Action inside the cooldown window was accepted")
	}

	clock.advance(time.Millisecond)
	if !rl.Allow("10.0.0.1") {
		t.Error("Action exactly at the window boundary was rejected")
	}
}

func TestRateLimiterRejectionDoesNotExtendCooldown(t *testing.T) {
	rl, clock := newTestLimiter(5 * time.Second)

	if !rl.Allow("10.0.0.1") {
		t.Fatal("First action rejected")
	}

	// Hammering inside the window must not push the cooldown out: back-off
	// is measured from the last accepted action only.
	for i := 0; i < 10; i++ {
		clock.advance(400 * time.Millisecond)
		if rl.Allow("10.0.0.1") {
			t.Fatalf("Action %d inside the window was accepted", i)
		}
	}

	// 4s elapsed so far; one more second reaches the original deadline.
	clock.advance(time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Error("Action after the original cooldown expired was rejected")
	}
}

func TestRateLimiterTracksOriginsIndependently(t *testing.T) {
	rl, clock := newTestLimiter(5 * time.Second)

	if !rl.Allow("10.0.0.1") {
		t.Fatal("First action from origin A rejected")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatal("First action from origin B rejected")
	}

	clock.advance(time.Second)
	if rl.Allow("10.0.0.1") {
		t.Error("Origin A accepted inside its window")
	}
	if rl.Allow("10.0.0.2") {
		t.Error("Origin B accepted inside its window")
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl, clock := newTestLimiter(5 * time.Second)

	rl.Allow("10.0.0.1")
	clock.advance(10 * time.Minute)
	rl.Allow("10.0.0.2")

	removed := rl.Prune(5 * time.Minute)
	if removed != 1 {
		t.Fatalf("Expected 1 pruned origin, got %d", removed)
	}

	// The pruned origin starts fresh.
	if !rl.Allow("10.0.0.1") {
		t.Error("Pruned origin still rate limited")
	}
	// The recent origin keeps its state.
	if rl.Allow("10.0.0.2") {
		t.Error("Recent origin lost its cooldown to pruning")
	}
}
