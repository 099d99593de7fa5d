package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultMaxAttempts is how many failures an address may accumulate
	// inside the window before login attempts are denied.
	DefaultMaxAttempts = 5
	// DefaultWindow is the lockout window.
	DefaultWindow = 300 * time.Second
)

// Limiter tracks failed login attempts per source address. All state is
// in process memory; the map is guarded by a mutex held only around
// prune/append/clear, never across I/O.
type Limiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
	now      func() time.Time
}

func New() *Limiter {
	return NewWithClock(DefaultMaxAttempts, DefaultWindow, time.Now)
}

// NewWithClock builds a limiter with an injectable clock for tests.
func NewWithClock(max int, window time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
		now:      now,
	}
}

// CheckAllowed prunes failures older than the window for addr and reports
// whether another attempt is allowed. When denied, the second return value
// is how long the caller has to wait, computed from the oldest retained
// failure.
func (l *Limiter) CheckAllowed(addr string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.attempts[addr][:0]
	for _, ts := range l.attempts[addr] {
		if now.Sub(ts) < l.window {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.attempts, addr)
	} else {
		l.attempts[addr] = kept
	}

	if len(kept) >= l.max {
		return false, l.window - now.Sub(kept[0])
	}
	return true, 0
}

// RecordFailure appends a failure timestamp for addr.
func (l *Limiter) RecordFailure(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[addr] = append(l.attempts[addr], l.now())
}

// ClearOnSuccess drops all recorded failures for addr.
func (l *Limiter) ClearOnSuccess(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, addr)
}
