package analysis

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is returned when the sliding window is full. Callers fail
// fast instead of queueing; a queued analysis would be stale by the time a
// slot frees up.
var ErrRateLimited = errors.New("analysis: rate limited")

// RateLimiter bounds outbound advisory calls to at most limit requests per
// sliding window. Only successful acquisitions consume a slot.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 50
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Acquire takes one slot or returns ErrRateLimited wrapped with the
// remaining slot count and the wait until the oldest in-window request
// expires.
func (l *RateLimiter) Acquire() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	if len(l.stamps) >= l.limit {
		wait := l.stamps[0].Add(l.window).Sub(now)
		if wait < 0 {
			wait = 0
		}
		remaining := l.limit - len(l.stamps)
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Errorf("%w, %d remaining, retry in %s", ErrRateLimited, remaining, wait.Round(time.Millisecond))
	}
	l.stamps = append(l.stamps, now)
	return nil
}

// Remaining reports how many slots are free in the current window.
func (l *RateLimiter) Remaining() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	remaining := l.limit - len(l.stamps)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept
}
