package subscription

import (
	"context"
	"errors"

	"github.com/kanbanhq/demandkit/pkg/statemachine"
)

var (
	eventActivate = statemachine.StringEvent("activate")
	eventPastDue  = statemachine.StringEvent("past_due")
	eventCancel   = statemachine.StringEvent("cancel")
	eventExpire   = statemachine.StringEvent("expire")
)

// statusEvents maps a target status to the event that reaches it.
// Trialing is only ever an initial status.
var statusEvents = map[Status]statemachine.Event{
	StatusActive:   eventActivate,
	StatusPastDue:  eventPastDue,
	StatusCanceled: eventCancel,
	StatusInactive: eventExpire,
}

var statusLifecycle = statemachine.MustDefine(
	statemachine.WithTransition(StatusTrialing, StatusActive, eventActivate),
	statemachine.WithTransition(StatusPastDue, StatusActive, eventActivate),
	statemachine.WithTransition(StatusCanceled, StatusActive, eventActivate),
	statemachine.WithTransition(StatusInactive, StatusActive, eventActivate),
	statemachine.WithTransition(StatusActive, StatusPastDue, eventPastDue),
	statemachine.WithTransitionsFrom(
		[]statemachine.State{StatusActive, StatusTrialing, StatusPastDue},
		StatusCanceled, eventCancel,
	),
	statemachine.WithTransitionsFrom(
		[]statemachine.State{StatusActive, StatusTrialing, StatusPastDue, StatusCanceled},
		StatusInactive, eventExpire,
	),
)

// CanTransition reports whether a subscription may move from one status to
// another. Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.Valid()
	}
	ev, ok := statusEvents[to]
	return ok && statusLifecycle.Allows(from, ev)
}

// Transition validates a status change against the subscription lifecycle.
func Transition(ctx context.Context, from, to Status) error {
	if !from.Valid() || !to.Valid() {
		return ErrInvalidStatus
	}
	if from == to {
		return nil
	}
	ev, ok := statusEvents[to]
	if !ok {
		return errors.Join(ErrInvalidStatusTransition, statemachine.NewErrNoTransitionAvailable(from.Name(), to.Name()))
	}
	if _, err := statusLifecycle.Resolve(ctx, from, ev, nil); err != nil {
		return errors.Join(ErrInvalidStatusTransition, err)
	}
	return nil
}
