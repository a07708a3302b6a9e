package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kanbanhq/demandkit/pkg/logger"
	"github.com/kanbanhq/demandkit/pkg/metrics"
	"github.com/kanbanhq/demandkit/svc/subscription"
)

// Webhook results reported to metrics.
const (
	WebhookApplied  = "applied"
	WebhookIgnored  = "ignored"
	WebhookRejected = "rejected"
)

// webhookAck is the body returned to the billing provider.
type webhookAck struct {
	Result string `json:"result"`
}

func (a *api) paddleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ev, err := a.Webhooks.ParseRequest(r)
	eventType := ev.ProviderEvent
	if eventType == "" {
		eventType = "unknown"
	}
	log := a.log.With(logger.EventType(eventType), slog.String("event_id", ev.ID))

	switch {
	case errors.Is(err, subscription.ErrUnsupportedEvent):
		a.ackWebhook(w, eventType, WebhookIgnored)
		return
	case errors.Is(err, subscription.ErrWebhookVerificationFailed):
		log.WarnContext(ctx, "webhook signature rejected", logger.Error(err))
		metrics.ObserveWebhook(eventType, WebhookRejected)
		respondError(w, r, a.log, ErrUnauthorized)
		return
	case err != nil:
		log.WarnContext(ctx, "webhook payload rejected", logger.Error(err))
		metrics.ObserveWebhook(eventType, WebhookRejected)
		respondError(w, r, a.log, ErrBadRequest)
		return
	}

	sub, err := a.Lifecycle.Apply(ctx, ev)
	switch {
	case err == nil:
		log.InfoContext(ctx, "subscription updated from webhook",
			logger.TeamID(sub.TeamID),
			logger.PlanID(sub.PlanID),
			slog.String("status", string(sub.Status)),
		)
		a.ackWebhook(w, eventType, WebhookApplied)
	case isPermanentWebhookError(err):
		// Retrying cannot change the outcome
		log.InfoContext(ctx, "webhook event ignored", logger.Error(err))
		a.ackWebhook(w, eventType, WebhookIgnored)
	default:
		metrics.ObserveWebhook(eventType, WebhookRejected)
		respondError(w, r, a.log, err)
	}
}

func (a *api) ackWebhook(w http.ResponseWriter, eventType, result string) {
	metrics.ObserveWebhook(eventType, result)
	respond(w, webhookAck{Result: result})
}

func isPermanentWebhookError(err error) bool {
	for _, target := range []error{
		subscription.ErrStaleEvent,
		subscription.ErrInvalidStatusTransition,
		subscription.ErrSubscriptionNotFound,
		subscription.ErrMissingTeamID,
		subscription.ErrMissingPlanID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
