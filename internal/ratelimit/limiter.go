// Package ratelimit implements fixed-window admission control: each key
// keeps the timestamps of its recent requests, and a request is admitted
// only while fewer than the allowed number fall inside the trailing window.
package ratelimit

import (
	"math/rand"
	"sync"
	"time"
)

// Limiter counts requests per key over a trailing time window. Safe for
// concurrent use; the filter-check-append sequence runs under one lock so
// concurrent callers cannot over-admit.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time

	now func() time.Time
	// sweepChance is the probability that an Allow call also sweeps
	// fully-expired keys, bounding memory without a background timer.
	sweepChance float64
}

// New creates a Limiter.
func New() *Limiter {
	return &Limiter{
		requests:    make(map[string][]time.Time),
		now:         time.Now,
		sweepChance: 0.01,
	}
}

// Allow reports whether a request under key is admitted given maxRequests
// per window. A rejected request is not recorded and does not extend the
// window.
func (l *Limiter) Allow(key string, maxRequests int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-window)

	recent := trimExpired(l.requests[key], windowStart)
	if len(recent) >= maxRequests {
		l.requests[key] = recent
		return false
	}

	l.requests[key] = append(recent, now)

	if rand.Float64() < l.sweepChance {
		l.sweep(windowStart)
	}
	return true
}

// sweep drops keys whose entire timestamp set has expired. Caller holds mu.
func (l *Limiter) sweep(windowStart time.Time) {
	for key, times := range l.requests {
		recent := trimExpired(times, windowStart)
		if len(recent) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = recent
		}
	}
}

func trimExpired(times []time.Time, windowStart time.Time) []time.Time {
	recent := times[:0:0]
	for _, t := range times {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}
	return recent
}
