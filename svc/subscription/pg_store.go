package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kanbanhq/demandkit/pkg/pg"
)

const subscriptionColumns = `team_id, plan_id, status, cancel_at_period_end,
	current_period_start, current_period_end, provider_sub_id,
	created_at, updated_at, canceled_at`

// PGStore keeps subscriptions in the subscriptions table.
type PGStore struct {
	db pg.DBTX
}

// NewPGStore returns a store backed by db. Panics on nil db.
func NewPGStore(db pg.DBTX) *PGStore {
	if db == nil {
		panic("subscription: db is required")
	}
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, teamID uuid.UUID) (*Subscription, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE team_id = $1`, teamID)
	return scanSubscription(row)
}

func (s *PGStore) GetByProviderSubID(ctx context.Context, providerSubID string) (*Subscription, error) {
	if providerSubID == "" {
		return nil, ErrSubscriptionNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_sub_id = $1`, providerSubID)
	return scanSubscription(row)
}

func (s *PGStore) Save(ctx context.Context, sub *Subscription) error {
	if sub == nil || sub.TeamID == uuid.Nil {
		return ErrMissingTeamID
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (team_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			provider_sub_id = EXCLUDED.provider_sub_id,
			updated_at = EXCLUDED.updated_at,
			canceled_at = EXCLUDED.canceled_at`,
		sub.TeamID, sub.PlanID, string(sub.Status), sub.CancelAtPeriodEnd,
		nullTime(sub.CurrentPeriodStart), nullTime(sub.CurrentPeriodEnd), sub.ProviderSubID,
		sub.CreatedAt, sub.UpdatedAt, sub.CanceledAt,
	)
	if err != nil {
		return errors.Join(ErrFailedToSaveSubscription, err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		sub         Subscription
		status      string
		periodStart *time.Time
		periodEnd   *time.Time
	)
	err := row.Scan(
		&sub.TeamID, &sub.PlanID, &status, &sub.CancelAtPeriodEnd,
		&periodStart, &periodEnd, &sub.ProviderSubID,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.CanceledAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadSubscription, err)
	}

	sub.Status = Status(status)
	if periodStart != nil {
		sub.CurrentPeriodStart = *periodStart
	}
	if periodEnd != nil {
		sub.CurrentPeriodEnd = *periodEnd
	}
	return &sub, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
