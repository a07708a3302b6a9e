// Package statemachine implements small guarded finite-state machines.
//
// A Definition is an immutable transition table keyed by state and event.
// It is built once with Define and shared by every machine started from it,
// so per-entity machines (a timer, a subscription) cost one pointer and a
// mutex.
//
//	var lifecycle = statemachine.MustDefine(
//	    statemachine.WithTransition(Idle, Running, Start),
//	    statemachine.WithTransition(Running, Idle, Stop),
//	)
//
//	sm, _ := lifecycle.Start(Idle)
//	if err := sm.Fire(ctx, Start, nil); err != nil {
//	    // IsNoTransitionAvailableError / IsTransitionRejectedError
//	}
//
// Stateless callers can ask the table directly with Resolve, which applies
// the same guard rules as Fire without holding any state.
//
// Several transitions may share a from/event pair; the first one whose
// guards all pass wins. Actions run in order before the state changes and
// abort the transition on error.
package statemachine
