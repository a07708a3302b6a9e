// Package usage stores per-team monthly usage counters and board service
// quotas, and feeds them to pkg/limits.
//
// Counter scopes every read and write to the current calendar month and
// exposes a limits.CounterRegistry. Monthly resources (demands) start each
// month at zero. The others are running totals carried over from the
// previous month on the first write.
//
// The limits service is advisory. Callers that must not overshoot a quota
// reserve through Counter.Reserve, which delegates to Store.Reserve: a
// check-and-increment serialized by the store (a mutex in memory, a row lock
// in PostgreSQL).
//
//	store := usage.NewCachedStore(usage.NewPGStore(pool), rdb)
//	counter := usage.NewCounter(store)
//	limitsSvc, _ := limits.NewLimitsService(ctx, plans, counter.Registry())
//
//	if _, err := counter.ReserveForPlan(ctx, limitsSvc, teamID, limits.ResourceDemands); err != nil {
//	    // errors.Is(err, limits.ErrLimitExceeded)
//	}
//
// Quotas evaluates board service quotas for the current month from a
// QuotaSource.
package usage
