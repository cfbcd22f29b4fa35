package ratelimit

import (
	"sync"
	"time"
)

// retention bounds how long an idle key survives before Cleanup drops it.
const retention = 24 * time.Hour

// Limiter counts events per key inside a trailing window.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	now func() time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow prunes timestamps older than window for key, then reports whether
// another event fits inside maxRequests. When it does, the event is recorded
// as a side effect — check-and-record is atomic from the caller's view.
func (l *Limiter) Allow(key string, maxRequests int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	live := l.prune(key, now, window)
	if len(live) >= maxRequests {
		return false
	}

	l.windows[key] = append(live, now)
	return true
}

// Remaining reports how many events still fit inside the window for key
// without recording anything.
func (l *Limiter) Remaining(key string, maxRequests int, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	live := l.prune(key, l.now(), window)
	remaining := maxRequests - len(live)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Cleanup drops keys whose newest timestamp is older than the retention
// window, bounding memory for callers that generate many distinct keys.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-retention)
	for key, stamps := range l.windows {
		if len(stamps) == 0 || stamps[len(stamps)-1].Before(cutoff) {
			delete(l.windows, key)
		}
	}
}

// prune must be called with l.mu held. It rewrites the key's slice to only
// the timestamps still inside the window and returns it.
func (l *Limiter) prune(key string, now time.Time, window time.Duration) []time.Time {
	stamps := l.windows[key]
	cutoff := now.Add(-window)

	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		stamps = append(stamps[:0:0], stamps[i:]...)
		if len(stamps) == 0 {
			delete(l.windows, key)
		} else {
			l.windows[key] = stamps
		}
	}
	return stamps
}
