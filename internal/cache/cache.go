// Package cache owns the single authoritative usage snapshot. It decides
// freshness via an adaptive TTL, serializes concurrent fetch attempts, and
// prefers returning stale-but-labeled data over a bare error.
package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/quotabar/quotabar/internal/core"
)

const (
	// DefaultTTL is how long a successful snapshot stays fresh.
	DefaultTTL = 5 * time.Minute
	// MaxTTL caps the exponential backoff after repeated failures.
	MaxTTL = 30 * time.Minute
	// NearResetTTL tightens polling when a quota reset is imminent.
	NearResetTTL = 1 * time.Minute

	nearResetWindow = 1 * time.Hour
)

// FetchFunc performs the actual remote fetch. Failures are returned as
// errors (typed *core.KindError where classified); the cache converts them
// into snapshot-embedded ErrorInfo.
type FetchFunc func(ctx context.Context, credential string) (core.UsageSnapshot, error)

type entry struct {
	snapshot            *core.UsageSnapshot
	lastFetchAt         time.Time
	lastSuccessAt       time.Time
	consecutiveFailures uint
	fetchInProgress     bool
}

type Cache struct {
	mu    sync.Mutex
	entry entry
	fetch FetchFunc

	now func() time.Time
}

func New(fetch FetchFunc) *Cache {
	return &Cache{fetch: fetch, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// GetUsage returns the freshest snapshot available. The lock is held only
// for the in-memory state transitions, never across the network call, so a
// concurrent caller gets the best current data immediately instead of
// waiting on an in-flight fetch.
func (c *Cache) GetUsage(ctx context.Context, force bool, credential string) core.UsageSnapshot {
	c.mu.Lock()
	now := c.now()

	if !force && c.validLocked(now) {
		snap := *c.entry.snapshot
		c.mu.Unlock()
		return snap
	}

	if c.entry.fetchInProgress {
		if c.entry.snapshot != nil {
			snap := *c.entry.snapshot
			c.mu.Unlock()
			return snap
		}
		c.mu.Unlock()
		return core.UsageSnapshot{IsLoading: true, FetchedAt: now}
	}

	c.entry.fetchInProgress = true
	c.entry.lastFetchAt = now
	c.mu.Unlock()

	// fetchInProgress must clear on every exit path, including a panic or
	// cancellation inside the fetch.
	committed := false
	defer func() {
		if !committed {
			c.mu.Lock()
			c.entry.fetchInProgress = false
			c.mu.Unlock()
		}
	}()

	snap, err := c.fetch(ctx, credential)
	out := c.commit(snap, err)
	committed = true
	return out
}

func (c *Cache) commit(snap core.UsageSnapshot, err error) core.UsageSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entry.fetchInProgress = false

	if err == nil {
		snap.FetchedAt = now
		c.entry.snapshot = &snap
		c.entry.lastSuccessAt = now
		c.entry.consecutiveFailures = 0
		return snap
	}

	c.entry.consecutiveFailures++
	log.Printf("[cache] fetch failed (%d consecutive): %v", c.entry.consecutiveFailures, err)

	info := core.NewErrorInfo(core.KindOf(err), err.Error())
	if c.entry.snapshot != nil {
		// Stale-but-available: hand back the last good data, labeled.
		return c.entry.snapshot.WithError(info)
	}
	return core.UsageSnapshot{Error: info, FetchedAt: now}
}

// IsValid reports whether the cached snapshot is fresh at the given time.
func (c *Cache) IsValid(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validLocked(now)
}

func (c *Cache) validLocked(now time.Time) bool {
	if c.entry.snapshot == nil {
		return false
	}
	return now.Sub(c.entry.lastSuccessAt) < c.dynamicTTLLocked(now)
}

// dynamicTTLLocked picks the freshness window: exponential backoff under
// failure pressure, a tight window near a known quota reset, the default
// otherwise. Backoff wins when both conditions hold.
func (c *Cache) dynamicTTLLocked(now time.Time) time.Duration {
	if n := c.entry.consecutiveFailures; n > 0 {
		ttl := DefaultTTL << (n - 1)
		if n >= 16 || ttl > MaxTTL {
			return MaxTTL
		}
		return ttl
	}
	if c.entry.snapshot != nil && c.entry.snapshot.ResetAt != nil {
		if until := c.entry.snapshot.ResetAt.Sub(now); until > 0 && until < nearResetWindow {
			return NearResetTTL
		}
	}
	return DefaultTTL
}

// TTL exposes the current dynamic TTL for observability output.
func (c *Cache) TTL(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dynamicTTLLocked(now)
}

// Current returns a copy of the last snapshot, or nil if none exists.
func (c *Cache) Current() *core.UsageSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry.snapshot == nil {
		return nil
	}
	snap := *c.entry.snapshot
	return &snap
}

// ConsecutiveFailures reports the current failure streak.
func (c *Cache) ConsecutiveFailures() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry.consecutiveFailures
}

// Invalidate clears the entry entirely. Used after sign-out, a NeedsReauth
// failure, or a settings change.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry.fetchInProgress {
		// Let the in-flight fetch commit into a fresh entry.
		c.entry = entry{fetchInProgress: true, lastFetchAt: c.entry.lastFetchAt}
		return
	}
	c.entry = entry{}
}

// Describe summarizes cache state for debug output.
func (c *Cache) Describe(now time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry.snapshot == nil {
		return "empty"
	}
	age := now.Sub(c.entry.lastSuccessAt).Round(time.Second)
	return fmt.Sprintf("age=%s ttl=%s failures=%d", age, c.dynamicTTLLocked(now), c.entry.consecutiveFailures)
}
