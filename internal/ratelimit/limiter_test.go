package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New()
	l.now = clock.Now
	return l, clock
}

// TestBurstLimit verifies that exactly the first N of N+1 calls inside the
// window are admitted.
func TestBurstLimit(t *testing.T) {
	l, clock := newTestLimiter()
	const maxRequests = 5
	window := time.Minute

	for i := 0; i < maxRequests; i++ {
		clock.Advance(time.Second)
		if !l.Allow("client-a", maxRequests, window) {
			t.Fatalf("request %d rejected, want admitted", i+1)
		}
	}
	if l.Allow("client-a", maxRequests, window) {
		t.Errorf("request %d admitted, want rejected", maxRequests+1)
	}
}

// TestWindowExpiry verifies that admission resumes after the window passes.
func TestWindowExpiry(t *testing.T) {
	l, clock := newTestLimiter()
	window := time.Minute

	for i := 0; i < 3; i++ {
		if !l.Allow("client-a", 3, window) {
			t.Fatalf("request %d rejected, want admitted", i+1)
		}
	}
	if l.Allow("client-a", 3, window) {
		t.Fatal("4th request admitted inside window, want rejected")
	}

	clock.Advance(window + time.Second)
	if !l.Allow("client-a", 3, window) {
		t.Error("request after window expiry rejected, want admitted")
	}
}

// TestRejectedRequestNotRecorded verifies a rejection does not consume quota.
func TestRejectedRequestNotRecorded(t *testing.T) {
	l, clock := newTestLimiter()
	window := time.Minute

	if !l.Allow("client-a", 1, window) {
		t.Fatal("first request rejected")
	}
	for i := 0; i < 10; i++ {
		if l.Allow("client-a", 1, window) {
			t.Fatalf("request %d admitted, want rejected", i+2)
		}
	}

	// Only the one recorded timestamp should age out.
	clock.Advance(window + time.Second)
	if !l.Allow("client-a", 1, window) {
		t.Error("request after expiry rejected; rejected attempts must not be recorded")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	window := time.Minute

	if !l.Allow("client-a", 1, window) {
		t.Fatal("client-a first request rejected")
	}
	if l.Allow("client-a", 1, window) {
		t.Fatal("client-a second request admitted")
	}
	if !l.Allow("client-b", 1, window) {
		t.Error("client-b rejected; keys must not share quota")
	}
}

// TestSweepDropsExpiredKeys forces the sweep and verifies stale keys vanish.
func TestSweepDropsExpiredKeys(t *testing.T) {
	l, clock := newTestLimiter()
	l.sweepChance = 1.0
	window := time.Minute

	l.Allow("stale", 10, window)
	clock.Advance(2 * window)
	l.Allow("fresh", 10, window)

	l.mu.Lock()
	_, staleExists := l.requests["stale"]
	_, freshExists := l.requests["fresh"]
	l.mu.Unlock()

	if staleExists {
		t.Error("stale key survived sweep")
	}
	if !freshExists {
		t.Error("fresh key dropped by sweep")
	}
}

// TestConcurrentAllow checks over-admission does not happen under contention.
func TestConcurrentAllow(t *testing.T) {
	l := New()
	const maxRequests = 50
	window := time.Minute

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared", maxRequests, window) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != maxRequests {
		t.Errorf("admitted = %d, want exactly %d", admitted, maxRequests)
	}
}
