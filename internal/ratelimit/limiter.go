// Package ratelimit gates network-performing strategies behind a per-key
// minimum interval so eager UI polling cannot hammer the remote service.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultMinInterval is the cooldown between remote calls sharing a key.
const DefaultMinInterval = 30 * time.Second

type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        map[string]time.Time

	now func() time.Time
}

func New(minInterval time.Duration) *Limiter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Limiter{
		minInterval: minInterval,
		last:        make(map[string]time.Time),
		now:         time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow reports whether a remote call under key may proceed. A true result
// records the new timestamp in the same critical section, so two concurrent
// callers can never both observe "allowed" for the same window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.last[key] = now
	return true
}

// WaitTime returns how long until Allow(key) would succeed, zero if it would
// succeed now.
func (l *Limiter) WaitTime(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.last[key]
	if !ok {
		return 0
	}
	remaining := l.minInterval - l.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the recorded timestamp for one key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, key)
}

// ResetAll clears every key.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = make(map[string]time.Time)
}
