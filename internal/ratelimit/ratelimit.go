package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window admission limiter over a shared provider quota.
// Unlike a token bucket it keeps the exact timestamps of admitted calls, so
// admission decisions are always evaluated against the true window contents
// and TimeUntilReset can report precisely when capacity returns.
type Limiter struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	calls []time.Time
	now   func() time.Time
}

// New creates a limiter that admits at most limit calls per window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		calls:  make([]time.Time, 0, limit),
		now:    time.Now,
	}
}

// Admit records the call and reports whether it was allowed. Denied calls are
// not recorded, so a burst of rejections never extends the backoff.
func (l *Limiter) Admit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(l.now())
	if len(l.calls) >= l.limit {
		return false
	}
	l.calls = append(l.calls, l.now())
	return true
}

// TimeUntilReset returns how long until the oldest recorded call ages out of
// the window, or 0 if no calls are pending.
func (l *Limiter) TimeUntilReset() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)
	if len(l.calls) == 0 {
		return 0
	}
	return l.calls[0].Add(l.window).Sub(now)
}

// Remaining returns the number of calls that would currently be admitted.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(l.now())
	return l.limit - len(l.calls)
}

// evict permanently drops timestamps older than now-window. Callers must hold mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}
