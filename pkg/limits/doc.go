// Package limits decides whether a team may create more resources under its
// subscription plan, and how close it is to its limits.
//
// The package has two layers. The pure layer (CanCreate, BoardServiceQuota,
// UsageBannerLevel, PeriodAt) performs no I/O and never fails. The service
// layer (LimitsService) resolves a team's plan, asks registered counters for
// current usage and feeds both into the pure layer.
//
// Key concepts:
//
//   - Plan: a subscription tier with per-resource limits, -1 meaning unlimited
//   - Resource: countable entities such as boards, members, notes, services and
//     monthly demands
//   - CounterFunc: returns current usage, already scoped to the current month
//     for monthly resources
//   - ServiceQuota: a per-board, per-service monthly cap where 0 means unlimited
//
// Basic usage:
//
//	source := limits.NewInMemSource(limits.Plan{
//	    ID:   "pro",
//	    Name: "Pro",
//	    Limits: map[limits.Resource]int64{
//	        limits.ResourceBoards:  20,
//	        limits.ResourceDemands: limits.Unlimited,
//	    },
//	})
//
//	counters := limits.NewRegistry()
//	counters.Register(limits.ResourceBoards, countBoards)
//
//	svc, err := limits.NewLimitsService(ctx, source, counters,
//	    limits.WithPlanIDResolver(resolvePlan),
//	)
//
//	d, err := svc.Check(ctx, teamID, limits.ResourceBoards)
//	if err == nil && !d.CanCreate {
//	    // show upgrade prompt
//	}
//
// Teams whose resolver returns ErrPlanIDNotFound get StarterPlan limits.
//
// Decisions are advisory. Concurrent creators can both pass Check; the
// authoritative reservation lives in the usage store.
package limits
