package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleSignatureHeader carries the webhook signature.
const PaddleSignatureHeader = "Paddle-Signature"

// PaddleConfig holds Paddle webhook settings.
type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	MaxBodyBytes  int64  `env:"PADDLE_WEBHOOK_MAX_BODY" envDefault:"1048576"`
}

// PaddleWebhookParser verifies Paddle notifications and normalises them into
// WebhookEvents. Checkouts must put the team ID (and optionally the plan ID)
// into custom_data as team_id and plan_id; otherwise the price ID is used as
// the plan ID.
type PaddleWebhookParser struct {
	verifier *paddle.WebhookVerifier
	maxBody  int64
}

// NewPaddleWebhookParser returns a parser for cfg.
func NewPaddleWebhookParser(cfg PaddleConfig) (*PaddleWebhookParser, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &PaddleWebhookParser{
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		maxBody:  maxBody,
	}, nil
}

// ParseRequest verifies and parses an incoming webhook request.
func (p *PaddleWebhookParser) ParseRequest(r *http.Request) (WebhookEvent, error) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, p.maxBody+1))
	if err != nil {
		return WebhookEvent{}, errors.Join(ErrInvalidWebhookPayload, err)
	}
	if int64(len(payload)) > p.maxBody {
		return WebhookEvent{}, errors.Join(ErrInvalidWebhookPayload, fmt.Errorf("body exceeds %d bytes", p.maxBody))
	}
	return p.Parse(r.Context(), payload, r.Header.Get(PaddleSignatureHeader))
}

// Parse verifies signature against payload and normalises the event.
// Events that do not affect subscriptions return ErrUnsupportedEvent.
func (p *PaddleWebhookParser) Parse(ctx context.Context, payload []byte, signature string) (WebhookEvent, error) {
	// The SDK verifier works on requests only
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhooks/paddle", bytes.NewReader(payload))
	if err != nil {
		return WebhookEvent{}, errors.Join(ErrWebhookVerificationFailed, err)
	}
	req.Header.Set(PaddleSignatureHeader, signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return WebhookEvent{}, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return WebhookEvent{}, ErrWebhookVerificationFailed
	}

	return parsePaddlePayload(payload)
}

type paddleNotification struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddlePeriod struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type paddleItem struct {
	PriceID string `json:"price_id"`
	Price   *struct {
		ID string `json:"id"`
	} `json:"price"`
}

// paddleEntity covers the subscription and transaction fields we read.
type paddleEntity struct {
	ID                   string         `json:"id"`
	SubscriptionID       string         `json:"subscription_id"`
	Status               string         `json:"status"`
	CustomData           map[string]any `json:"custom_data"`
	Items                []paddleItem   `json:"items"`
	CurrentBillingPeriod *paddlePeriod  `json:"current_billing_period"`
	BillingPeriod        *paddlePeriod  `json:"billing_period"`
	CanceledAt           *time.Time     `json:"canceled_at"`
	ScheduledChange      *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
}

var paddleEventTypes = map[string]EventType{
	"transaction.completed":      EventCheckoutCompleted,
	"subscription.created":       EventCreated,
	"subscription.activated":     EventRenewed,
	"subscription.updated":       EventUpdated,
	"subscription.past_due":      EventPastDue,
	"subscription.canceled":      EventCanceled,
	"subscription.resumed":       EventResumed,
	"subscription.paused":        EventExpired,
	"subscription.trialing":      EventUpdated,
	"subscription.imported":      EventCreated,
	"transaction.past_due":       EventPastDue,
	"transaction.payment_failed": EventPastDue,
}

func parsePaddlePayload(payload []byte) (WebhookEvent, error) {
	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return WebhookEvent{}, errors.Join(ErrInvalidWebhookPayload, err)
	}

	typ, ok := paddleEventTypes[n.EventType]
	if !ok {
		return WebhookEvent{ID: n.EventID, ProviderEvent: n.EventType}, ErrUnsupportedEvent
	}

	var data paddleEntity
	if err := json.Unmarshal(n.Data, &data); err != nil {
		return WebhookEvent{}, errors.Join(ErrInvalidWebhookPayload, err)
	}

	ev := WebhookEvent{
		ID:            n.EventID,
		Type:          typ,
		ProviderEvent: n.EventType,
		OccurredAt:    n.OccurredAt,
		CanceledAt:    data.CanceledAt,
	}

	if strings.HasPrefix(n.EventType, "transaction.") {
		// Transactions without a subscription are one-off purchases
		if data.SubscriptionID == "" {
			return ev, ErrUnsupportedEvent
		}
		ev.ProviderSubID = data.SubscriptionID
		if data.BillingPeriod != nil {
			ev.PeriodStart, ev.PeriodEnd = data.BillingPeriod.StartsAt, data.BillingPeriod.EndsAt
		}
	} else {
		ev.ProviderSubID = data.ID
		ev.Status = paddleStatus(data.Status)
		if data.CurrentBillingPeriod != nil {
			ev.PeriodStart, ev.PeriodEnd = data.CurrentBillingPeriod.StartsAt, data.CurrentBillingPeriod.EndsAt
		}
		ev.CancelAtPeriodEnd = data.ScheduledChange != nil && data.ScheduledChange.Action == "cancel"
	}

	if raw, ok := data.CustomData["team_id"].(string); ok {
		teamID, err := uuid.Parse(raw)
		if err != nil {
			return WebhookEvent{}, errors.Join(ErrInvalidWebhookPayload, fmt.Errorf("custom_data.team_id: %w", err))
		}
		ev.TeamID = teamID
	}
	if planID, ok := data.CustomData["plan_id"].(string); ok && planID != "" {
		ev.PlanID = planID
	} else if len(data.Items) > 0 {
		item := data.Items[0]
		ev.PlanID = item.PriceID
		if item.Price != nil && item.Price.ID != "" {
			ev.PlanID = item.Price.ID
		}
	}

	return ev, nil
}

// paddleStatus maps Paddle's subscription status. Paused subscriptions grant
// no plan until resumed. Unknown values return "" so the event type decides.
func paddleStatus(s string) Status {
	switch strings.ToLower(s) {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "canceled", "cancelled":
		return StatusCanceled
	case "paused":
		return StatusInactive
	}
	return ""
}
