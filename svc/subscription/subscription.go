package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status is the billing state of a team's subscription.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusInactive Status = "inactive"
)

// Name makes Status usable as a state machine state.
func (s Status) Name() string { return string(s) }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusInactive:
		return true
	}
	return false
}

// Entitled reports whether a subscription in this status grants its plan's
// limits. Past-due subscriptions keep their plan while the provider retries.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing || s == StatusPastDue
}

// Subscription binds a team to a plan. Each team has at most one, keyed by
// TeamID, and rows are never deleted: ended subscriptions go inactive.
type Subscription struct {
	TeamID             uuid.UUID
	PlanID             string
	Status             Status
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time // zero when unknown
	CurrentPeriodEnd   time.Time // zero when unknown
	ProviderSubID      string    // empty for subscriptions created outside the provider
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CanceledAt         *time.Time
}

func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsCanceled() bool {
	return s.Status == StatusCanceled
}

// PeriodEndedAt reports whether the current billing period is over at now.
// Subscriptions without a known period end never end by time.
func (s *Subscription) PeriodEndedAt(now time.Time) bool {
	return !s.CurrentPeriodEnd.IsZero() && !now.Before(s.CurrentPeriodEnd)
}

// DaysRemainingAt returns whole days left in the current period, rounding
// partial days to the nearest day. Returns 0 when the period is unknown or over.
func (s *Subscription) DaysRemainingAt(now time.Time) int {
	if s.CurrentPeriodEnd.IsZero() {
		return 0
	}
	remaining := s.CurrentPeriodEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := remaining.Hours() / 24
	return int(days + 0.5)
}
