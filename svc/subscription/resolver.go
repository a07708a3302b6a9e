package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/cache"
	"github.com/kanbanhq/demandkit/pkg/limits"
	"github.com/kanbanhq/demandkit/pkg/logger"
)

const (
	DefaultResolverCacheSize = 10_000
	DefaultResolverCacheTTL  = 5 * time.Minute
)

// PlanResolver maps a team to the plan its subscription entitles it to.
//
// It wraps a Store: reads go through an LRU cache of resolved plan IDs and
// Save drops the team's cache entry, so lifecycle updates written through the
// resolver take effect on the next lookup. Teams without an entitled
// subscription resolve to limits.ErrPlanIDNotFound, which the limits service
// treats as the starter plan.
type PlanResolver struct {
	store  Store
	cache  *cache.LRUCache[uuid.UUID, string]
	logger *slog.Logger
}

// ResolverOption configures a PlanResolver.
type ResolverOption func(*resolverOptions)

type resolverOptions struct {
	size   int
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// WithCacheSize bounds the number of cached teams.
func WithCacheSize(n int) ResolverOption {
	return func(o *resolverOptions) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithCacheTTL bounds how long a resolved plan is trusted without a write.
func WithCacheTTL(d time.Duration) ResolverOption {
	return func(o *resolverOptions) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithResolverClock overrides the clock used for cache expiry.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(o *resolverOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(o *resolverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewPlanResolver wraps store. Panics on nil store.
func NewPlanResolver(store Store, opts ...ResolverOption) *PlanResolver {
	if store == nil {
		panic("subscription: store is required")
	}

	o := resolverOptions{
		size:   DefaultResolverCacheSize,
		ttl:    DefaultResolverCacheTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &PlanResolver{
		store: store,
		cache: cache.NewLRUCache(o.size,
			cache.WithTTL[uuid.UUID, string](o.ttl),
			cache.WithClock[uuid.UUID, string](o.now),
		),
		logger: o.logger.With(logger.Component("subscription.resolver")),
	}
}

var _ Store = (*PlanResolver)(nil)

// Resolve returns the plan ID for teamID. It has the limits.PlanIDResolver
// signature so it can be passed as limits.WithPlanIDResolver(r.Resolve).
func (r *PlanResolver) Resolve(ctx context.Context, teamID uuid.UUID) (string, error) {
	if planID, ok := r.cache.Get(teamID); ok {
		if planID == "" {
			return "", limits.ErrPlanIDNotFound
		}
		return planID, nil
	}

	sub, err := r.store.Get(ctx, teamID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		r.cache.Put(teamID, "")
		return "", limits.ErrPlanIDNotFound
	case err != nil:
		return "", err
	}

	// Empty entries mark teams on the fallback plan
	planID := ""
	if sub.Status.Entitled() {
		planID = sub.PlanID
	}
	r.cache.Put(teamID, planID)

	if planID == "" {
		r.logger.DebugContext(ctx, "subscription not entitled, using fallback plan",
			logger.TeamID(teamID),
			slog.String("status", string(sub.Status)),
		)
		return "", limits.ErrPlanIDNotFound
	}
	return planID, nil
}

// Invalidate drops the cached plan for teamID.
func (r *PlanResolver) Invalidate(teamID uuid.UUID) {
	r.cache.Remove(teamID)
}

func (r *PlanResolver) Get(ctx context.Context, teamID uuid.UUID) (*Subscription, error) {
	return r.store.Get(ctx, teamID)
}

func (r *PlanResolver) GetByProviderSubID(ctx context.Context, providerSubID string) (*Subscription, error) {
	return r.store.GetByProviderSubID(ctx, providerSubID)
}

// Save writes through to the wrapped store and invalidates the team's entry
// whether or not the write succeeded.
func (r *PlanResolver) Save(ctx context.Context, sub *Subscription) error {
	if sub != nil {
		defer r.Invalidate(sub.TeamID)
	}
	return r.store.Save(ctx, sub)
}
