package subscription

import "errors"

var (
	ErrSubscriptionNotFound     = errors.New("subscription: not found")
	ErrInvalidStatus            = errors.New("subscription: invalid status")
	ErrInvalidStatusTransition  = errors.New("subscription: invalid status transition")
	ErrStaleEvent               = errors.New("subscription: event is older than the stored state")
	ErrMissingTeamID            = errors.New("subscription: team ID is required")
	ErrMissingPlanID            = errors.New("subscription: plan ID is required")
	ErrFailedToLoadSubscription = errors.New("subscription: failed to load subscription")
	ErrFailedToSaveSubscription = errors.New("subscription: failed to save subscription")

	ErrMissingWebhookSecret      = errors.New("subscription: webhook secret is required")
	ErrWebhookVerificationFailed = errors.New("subscription: webhook signature verification failed")
	ErrInvalidWebhookPayload     = errors.New("subscription: invalid webhook payload")
	ErrUnsupportedEvent          = errors.New("subscription: unsupported webhook event")
)
