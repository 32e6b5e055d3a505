// Package acquire holds the acquisition strategies and the orchestrator
// that dispatches usage requests to the first applicable one.
package acquire

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/quotabar/quotabar/internal/cache"
	"github.com/quotabar/quotabar/internal/core"
	"github.com/quotabar/quotabar/internal/sessionstore"
)

// Orchestrator tries strategies in ascending priority order and invokes the
// first whose CanExecute returns true. Single-pick dispatch: a failing
// strategy's error snapshot is returned as-is, not retried on the next
// strategy.
type Orchestrator struct {
	strategies []core.Strategy
	store      *sessionstore.Store
	cache      *cache.Cache

	now func() time.Time
}

func NewOrchestrator(store *sessionstore.Store, usageCache *cache.Cache, strategies ...core.Strategy) *Orchestrator {
	sorted := make([]core.Strategy, len(strategies))
	copy(sorted, strategies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	return &Orchestrator{
		strategies: sorted,
		store:      store,
		cache:      usageCache,
		now:        time.Now,
	}
}

// GetUsage resolves a snapshot for the request. Callers always receive a
// UsageSnapshot; failures are embedded, never thrown.
func (o *Orchestrator) GetUsage(ctx context.Context, req core.Request) core.UsageSnapshot {
	for _, s := range o.strategies {
		if !s.CanExecute(ctx, req) {
			continue
		}

		log.Printf("[acquire] using strategy %q", s.Name())
		snap := s.Execute(ctx, req)

		if snap.Error != nil && snap.Error.Kind == core.ErrNeedsReauth {
			// Force the next call to re-resolve a credential.
			if err := o.store.Clear(); err != nil {
				log.Printf("[acquire] clearing session after reauth: %v", err)
			}
			o.cache.Invalidate()
		}
		return snap
	}

	return core.ErrorSnapshot(core.ErrNoCredential, "no usable credential source", o.now())
}

// Strategies exposes the resolved priority order for debug output.
func (o *Orchestrator) Strategies() []string {
	names := make([]string, len(o.strategies))
	for i, s := range o.strategies {
		names[i] = s.Name()
	}
	return names
}
