package core

import "context"

// Request carries the per-call inputs a strategy may act on.
type Request struct {
	Force            bool
	ManualCredential string
}

// Strategy is one way of obtaining a usage snapshot. The orchestrator sorts
// strategies ascending by Priority and invokes the first whose CanExecute
// returns true; this is single-pick dispatch, not a failover chain.
type Strategy interface {
	Name() string
	Priority() int
	CanExecute(ctx context.Context, req Request) bool
	Execute(ctx context.Context, req Request) UsageSnapshot
}
