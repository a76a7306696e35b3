// Package ratelimit counts OTP requests per phone over a fixed window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMax    = 3
	DefaultWindow = 60 * time.Second
)

// Limiter decides whether another request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps windows in process memory. Counts are lost on restart
// and not shared between instances; use PGLimiter when running more than one.
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	max       int
	period    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryLimiter(max int, period time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = DefaultMax
	}
	if period <= 0 {
		period = DefaultWindow
	}
	return &MemoryLimiter{
		windows:   make(map[string]*window),
		max:       max,
		period:    period,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

// Allow starts a window on the first request, admits up to max requests
// inside it, and starts over once the window has passed.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.period)}
		return true, nil
	}

	if w.count >= l.max {
		return false, nil
	}
	w.count++
	return true, nil
}

// sweep drops finished windows at most once per period. Caller holds mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.period {
		return
	}
	for k, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, k)
		}
	}
	l.lastSweep = now
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
