package plancache

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

// PlanResolver is satisfied by planner.Resolver.
type PlanResolver interface {
	Resolve(ctx context.Context, constraints []contracts.ExecutionConstraint) (*contracts.ExecutionPlan, error)
}

// CachingResolver serves plans from a cache and collapses concurrent
// resolutions of the same constraint set into one. Failed resolutions are
// not cached. Cache faults degrade to a direct resolution.
type CachingResolver struct {
	next   PlanResolver
	cache  Cache
	sf     singleflight.Group
	logger *slog.Logger
}

func NewCachingResolver(next PlanResolver, cache Cache) *CachingResolver {
	return &CachingResolver{
		next:   next,
		cache:  cache,
		logger: slog.Default().With("component", "plancache"),
	}
}

func (r *CachingResolver) Resolve(ctx context.Context, constraints []contracts.ExecutionConstraint) (*contracts.ExecutionPlan, error) {
	key, err := Key(constraints)
	if err != nil {
		return nil, err
	}

	if plan, ok, err := r.cache.Get(ctx, key); err != nil {
		r.logger.WarnContext(ctx, "plan cache read failed", "key", key, "error", err)
	} else if ok {
		return plan, nil
	}

	// The shared resolution outlives any one caller's cancellation; each
	// caller still stops waiting when its own ctx is done.
	ch := r.sf.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		plan, err := r.next.Resolve(fctx, constraints)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Put(fctx, key, plan); err != nil {
			r.logger.WarnContext(fctx, "plan cache write failed", "key", key, "error", err)
		}
		return plan, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		plan := res.Val.(*contracts.ExecutionPlan)
		if res.Shared {
			plan = clonePlan(plan)
		}
		return plan, nil
	}
}
