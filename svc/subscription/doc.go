// Package subscription tracks which plan each team is subscribed to and keeps
// that binding current from billing provider webhooks.
//
// A team has at most one Subscription. Its status follows a fixed lifecycle
// (trialing, active, past_due, canceled, inactive) enforced with
// pkg/statemachine, and rows are never deleted.
//
// Wiring:
//
//	store := subscription.NewPGStore(pool)
//	resolver := subscription.NewPlanResolver(store)
//	lifecycle := subscription.NewLifecycle(resolver)
//
//	limitsSvc, _ := limits.NewLimitsService(ctx, plans, counters,
//	    limits.WithPlanIDResolver(resolver.Resolve))
//
//	parser, _ := subscription.NewPaddleWebhookParser(cfg)
//	ev, err := parser.ParseRequest(r)
//	if err == nil {
//	    _, err = lifecycle.Apply(ctx, ev)
//	}
//
// Only active, trialing and past_due subscriptions grant their plan. Anything
// else resolves to limits.ErrPlanIDNotFound so the limits service falls back
// to the starter plan.
package subscription
