// Package ratelimit provides the outbound request quota shared by every inference call.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a fixed-window request counter. One instance is shared by all inference
// clients of a process; every method is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	now         func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter allowing limit acquisitions per window.
// Non-positive values fall back to 60 requests per minute.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.windowStart = l.now()
	return l
}

// Limit returns the number of acquisitions allowed per window.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// TryAcquire takes one slot if the current window has room. An elapsed window is reset
// before the check, under the same lock.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked()
	if l.count >= l.limit {
		return false
	}
	l.count++
	return true
}

// WaitUntilAvailable returns how long until a slot frees up; zero when one is free now.
func (l *Limiter) WaitUntilAvailable() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked()
	if l.count < l.limit {
		return 0
	}
	wait := l.windowStart.Add(l.window).Sub(l.now())
	if wait < 0 {
		return 0
	}
	return wait
}

// Wait blocks until a slot is acquired or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.TryAcquire() {
			return nil
		}

		wait := l.WaitUntilAvailable()
		if wait <= 0 {
			// The window rolled between the two calls.
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining returns the slots left in the current window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked()
	return l.limit - l.count
}

func (l *Limiter) rollLocked() {
	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.count = 0
		l.windowStart = now
	}
}
