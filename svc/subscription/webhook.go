package subscription

import (
	"time"

	"github.com/google/uuid"
)

// EventType is a provider-neutral billing event.
type EventType string

const (
	// EventCheckoutCompleted creates or restarts a subscription.
	EventCheckoutCompleted EventType = "checkout_completed"
	EventCreated           EventType = "subscription_created"
	EventUpdated           EventType = "subscription_updated"
	EventRenewed           EventType = "subscription_renewed"
	EventPastDue           EventType = "subscription_past_due"
	EventCanceled          EventType = "subscription_canceled"
	EventResumed           EventType = "subscription_resumed"
	EventExpired           EventType = "subscription_expired"
)

// WebhookEvent is a verified, normalised billing event. Zero fields mean the
// provider did not send them; Apply keeps the stored values in that case.
type WebhookEvent struct {
	ID                string
	Type              EventType
	ProviderEvent     string
	OccurredAt        time.Time
	TeamID            uuid.UUID
	ProviderSubID     string
	PlanID            string
	Status            Status
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
}

// targetStatus is the status the event moves a subscription to when the
// provider did not state one explicitly.
func (e WebhookEvent) targetStatus() Status {
	if e.Status != "" {
		return e.Status
	}
	switch e.Type {
	case EventPastDue:
		return StatusPastDue
	case EventCanceled:
		return StatusCanceled
	case EventExpired:
		return StatusInactive
	case EventCheckoutCompleted, EventCreated, EventRenewed, EventResumed:
		return StatusActive
	}
	return ""
}

// creates reports whether the event may create a subscription row.
func (e WebhookEvent) creates() bool {
	return e.Type == EventCheckoutCompleted || e.Type == EventCreated
}
