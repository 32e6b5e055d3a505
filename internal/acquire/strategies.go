package acquire

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/quotabar/quotabar/internal/browser"
	"github.com/quotabar/quotabar/internal/cache"
	"github.com/quotabar/quotabar/internal/core"
	"github.com/quotabar/quotabar/internal/ratelimit"
	"github.com/quotabar/quotabar/internal/sessionstore"
)

// Strategy priorities; lower is tried first.
const (
	priorityCached       = 0
	priorityManual       = 10
	priorityStored       = 20
	priorityCookieImport = 30
)

// Rate-limiter keys, one per network-performing strategy.
const (
	limitKeyManual  = "manual"
	limitKeySession = "session"
	limitKeyCookies = "cookies"
)

// rateLimitedSnapshot substitutes the cached snapshot when the cooldown gate
// denies a network call. Rate limiting is soft: it only surfaces as an error
// when there is no prior data to show at all.
func rateLimitedSnapshot(c *cache.Cache, l *ratelimit.Limiter, key string) core.UsageSnapshot {
	if snap := c.Current(); snap != nil {
		return *snap
	}
	wait := l.WaitTime(key).Round(time.Second)
	return core.ErrorSnapshot(core.ErrRateLimited,
		fmt.Sprintf("refresh available in %s", wait), time.Now())
}

// Cached serves a still-fresh snapshot without any I/O.
type Cached struct {
	Cache *cache.Cache
}

func (s *Cached) Name() string  { return "cached" }
func (s *Cached) Priority() int { return priorityCached }

func (s *Cached) CanExecute(_ context.Context, req core.Request) bool {
	return !req.Force && s.Cache.IsValid(time.Now())
}

func (s *Cached) Execute(_ context.Context, _ core.Request) core.UsageSnapshot {
	if snap := s.Cache.Current(); snap != nil {
		return *snap
	}
	return core.UsageSnapshot{IsLoading: true, FetchedAt: time.Now()}
}

// ManualCredential fetches with a caller-supplied credential (the paste
// path). The credential is not persisted here; 'session set' does that
// explicitly.
type ManualCredential struct {
	Cache   *cache.Cache
	Limiter *ratelimit.Limiter
}

func (s *ManualCredential) Name() string  { return "manual-credential" }
func (s *ManualCredential) Priority() int { return priorityManual }

func (s *ManualCredential) CanExecute(_ context.Context, req core.Request) bool {
	return req.ManualCredential != ""
}

func (s *ManualCredential) Execute(ctx context.Context, req core.Request) core.UsageSnapshot {
	if !s.Limiter.Allow(limitKeyManual) {
		return rateLimitedSnapshot(s.Cache, s.Limiter, limitKeyManual)
	}
	return s.Cache.GetUsage(ctx, true, req.ManualCredential)
}

// StoredSession fetches with the credential from the secure session store.
type StoredSession struct {
	Cache   *cache.Cache
	Store   *sessionstore.Store
	Limiter *ratelimit.Limiter
}

func (s *StoredSession) Name() string  { return "stored-session" }
func (s *StoredSession) Priority() int { return priorityStored }

func (s *StoredSession) CanExecute(_ context.Context, _ core.Request) bool {
	sess, err := s.Store.Get()
	return err == nil && sess != nil
}

func (s *StoredSession) Execute(ctx context.Context, req core.Request) core.UsageSnapshot {
	sess, err := s.Store.Get()
	if err != nil || sess == nil {
		return core.ErrorSnapshot(core.ErrNoCredential, "stored session unavailable", time.Now())
	}
	if !s.Limiter.Allow(limitKeySession) {
		return rateLimitedSnapshot(s.Cache, s.Limiter, limitKeySession)
	}
	return s.Cache.GetUsage(ctx, req.Force, sess.Credential)
}

// CookieImport pulls a fresh credential out of a browser cookie store. The
// historical strategy: implemented and wired, but gated behind an explicit
// opt-in because the access pattern trips antivirus heuristics.
type CookieImport struct {
	Cache    *cache.Cache
	Store    *sessionstore.Store
	Limiter  *ratelimit.Limiter
	Importer *browser.Importer

	Browser string
	Enabled func() bool
}

func (s *CookieImport) Name() string  { return "cookie-import" }
func (s *CookieImport) Priority() int { return priorityCookieImport }

func (s *CookieImport) CanExecute(_ context.Context, _ core.Request) bool {
	if s.Enabled == nil || !s.Enabled() {
		return false
	}
	return s.Importer.Available(s.Browser)
}

func (s *CookieImport) Execute(ctx context.Context, _ core.Request) core.UsageSnapshot {
	if !s.Limiter.Allow(limitKeyCookies) {
		return rateLimitedSnapshot(s.Cache, s.Limiter, limitKeyCookies)
	}

	sess, err := s.Importer.ImportSession(ctx, s.Browser)
	if err != nil {
		return core.ErrorSnapshot(core.ErrNoCredential,
			fmt.Sprintf("cookie import failed: %v", err), time.Now())
	}

	// Opportunistically persist the imported credential so the next call
	// resolves via the stored-session strategy.
	if err := s.Store.Set(*sess); err != nil {
		log.Printf("[acquire] persisting imported session: %v", err)
	}

	return s.Cache.GetUsage(ctx, true, sess.Credential)
}
