package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/logger"
)

// Lifecycle applies billing events to stored subscriptions.
type Lifecycle struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithLifecycleClock overrides the clock used for timestamps the provider did not send.
func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLifecycleLogger sets the logger.
func WithLifecycleLogger(log *slog.Logger) LifecycleOption {
	return func(l *Lifecycle) {
		if log != nil {
			l.logger = log
		}
	}
}

// NewLifecycle returns a Lifecycle writing to store. Pass a PlanResolver as
// the store so resolved plans are invalidated on every change. Panics on nil store.
func NewLifecycle(store Store, opts ...LifecycleOption) *Lifecycle {
	if store == nil {
		panic("subscription: store is required")
	}
	l := &Lifecycle{store: store, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(logger.Component("subscription.lifecycle"))
	return l
}

// Apply moves the team's subscription according to ev and returns the stored
// result.
//
// Checkout and creation events create the subscription, or restart it when
// the previous one went inactive. Other events require an existing
// subscription and must follow the status lifecycle, otherwise
// ErrInvalidStatusTransition is returned. Events older than the last applied
// change return ErrStaleEvent. Replaying an event that changes nothing is a
// no-op.
func (l *Lifecycle) Apply(ctx context.Context, ev WebhookEvent) (*Subscription, error) {
	existing, err := l.find(ctx, ev)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	if existing == nil || (ev.creates() && existing.Status == StatusInactive) {
		if !ev.creates() {
			return nil, ErrSubscriptionNotFound
		}
		return l.create(ctx, ev)
	}

	if !ev.OccurredAt.IsZero() && ev.OccurredAt.Before(existing.UpdatedAt) {
		l.logger.InfoContext(ctx, "ignoring stale billing event",
			logger.TeamID(existing.TeamID),
			logger.EventType(ev.ProviderEvent),
			slog.Time("occurred_at", ev.OccurredAt),
			slog.Time("updated_at", existing.UpdatedAt),
		)
		return existing, ErrStaleEvent
	}

	return l.update(ctx, existing, ev)
}

func (l *Lifecycle) find(ctx context.Context, ev WebhookEvent) (*Subscription, error) {
	if ev.TeamID != uuid.Nil {
		sub, err := l.store.Get(ctx, ev.TeamID)
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return sub, err
		}
	}
	if ev.ProviderSubID != "" {
		return l.store.GetByProviderSubID(ctx, ev.ProviderSubID)
	}
	return nil, ErrSubscriptionNotFound
}

func (l *Lifecycle) create(ctx context.Context, ev WebhookEvent) (*Subscription, error) {
	if ev.TeamID == uuid.Nil {
		return nil, ErrMissingTeamID
	}
	if ev.PlanID == "" {
		return nil, ErrMissingPlanID
	}
	status := ev.targetStatus()
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	at := l.eventTime(ev)
	sub := &Subscription{
		TeamID:             ev.TeamID,
		PlanID:             ev.PlanID,
		Status:             status,
		CancelAtPeriodEnd:  ev.CancelAtPeriodEnd,
		CurrentPeriodStart: ev.PeriodStart,
		CurrentPeriodEnd:   ev.PeriodEnd,
		ProviderSubID:      ev.ProviderSubID,
		CreatedAt:          at,
		UpdatedAt:          at,
		CanceledAt:         ev.CanceledAt,
	}
	if err := l.store.Save(ctx, sub); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "subscription created",
		logger.TeamID(sub.TeamID),
		logger.PlanID(sub.PlanID),
		logger.EventType(ev.ProviderEvent),
		slog.String("status", string(sub.Status)),
	)
	return sub, nil
}

func (l *Lifecycle) update(ctx context.Context, existing *Subscription, ev WebhookEvent) (*Subscription, error) {
	to := ev.targetStatus()
	if to == "" {
		to = existing.Status
	}
	if err := Transition(ctx, existing.Status, to); err != nil {
		l.logger.WarnContext(ctx, "billing event rejected by subscription lifecycle",
			logger.TeamID(existing.TeamID),
			logger.EventType(ev.ProviderEvent),
			slog.String("from", string(existing.Status)),
			slog.String("to", string(to)),
		)
		return existing, err
	}

	next := *cloneSubscription(*existing)
	next.Status = to
	if ev.PlanID != "" {
		next.PlanID = ev.PlanID
	}
	if ev.ProviderSubID != "" {
		next.ProviderSubID = ev.ProviderSubID
	}
	if !ev.PeriodStart.IsZero() {
		next.CurrentPeriodStart = ev.PeriodStart
	}
	if !ev.PeriodEnd.IsZero() {
		next.CurrentPeriodEnd = ev.PeriodEnd
	}
	// Payments do not carry the scheduled change, subscription events always do
	if ev.Type != EventCheckoutCompleted {
		next.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	}
	switch to {
	case StatusCanceled:
		if next.CanceledAt == nil {
			at := l.eventTime(ev)
			if ev.CanceledAt != nil {
				at = *ev.CanceledAt
			}
			next.CanceledAt = &at
		}
		next.CancelAtPeriodEnd = false
	case StatusActive, StatusTrialing:
		next.CanceledAt = nil
	}

	if sameState(existing, &next) {
		return existing, nil
	}

	next.UpdatedAt = l.eventTime(ev)
	if err := l.store.Save(ctx, &next); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "subscription updated",
		logger.TeamID(next.TeamID),
		logger.PlanID(next.PlanID),
		logger.EventType(ev.ProviderEvent),
		slog.String("from", string(existing.Status)),
		slog.String("to", string(next.Status)),
	)
	return &next, nil
}

func (l *Lifecycle) eventTime(ev WebhookEvent) time.Time {
	if !ev.OccurredAt.IsZero() {
		return ev.OccurredAt.UTC()
	}
	return l.now().UTC()
}

func sameState(a, b *Subscription) bool {
	if (a.CanceledAt == nil) != (b.CanceledAt == nil) {
		return false
	}
	if a.CanceledAt != nil && !a.CanceledAt.Equal(*b.CanceledAt) {
		return false
	}
	return a.PlanID == b.PlanID &&
		a.Status == b.Status &&
		a.CancelAtPeriodEnd == b.CancelAtPeriodEnd &&
		a.CurrentPeriodStart.Equal(b.CurrentPeriodStart) &&
		a.CurrentPeriodEnd.Equal(b.CurrentPeriodEnd) &&
		a.ProviderSubID == b.ProviderSubID
}
