package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/limits"
	"github.com/kanbanhq/demandkit/pkg/logger"
	"github.com/kanbanhq/demandkit/pkg/metrics"
)

// Reservation outcomes reported to metrics.
const (
	OutcomeReserved  = "reserved"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

// Counter reads and writes usage scoped to the current month.
type Counter struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// CounterOption configures a Counter.
type CounterOption func(*Counter)

// WithClock overrides the clock that picks the current month.
func WithClock(now func() time.Time) CounterOption {
	return func(c *Counter) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CounterOption {
	return func(c *Counter) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCounter returns a Counter over store. Panics on nil store.
func NewCounter(store Store, opts ...CounterOption) *Counter {
	if store == nil {
		panic("usage: store is required")
	}
	c := &Counter{store: store, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("usage.counter"))
	return c
}

// Count returns the team's current usage of res. Monthly resources read the
// current month only; running totals read the latest record.
func (c *Counter) Count(ctx context.Context, teamID uuid.UUID, res limits.Resource) (int64, error) {
	if _, ok := column(res); !ok {
		return 0, ErrUnknownResource
	}

	var (
		rec Record
		err error
	)
	if res.Monthly() {
		rec, err = c.store.Get(ctx, teamID, c.now())
	} else {
		rec, err = c.store.Latest(ctx, teamID, c.now())
	}
	if err != nil {
		return 0, err
	}
	return rec.Get(res), nil
}

// Current returns the team's usage for the current month, with running
// totals carried over when the month has no record yet.
func (c *Counter) Current(ctx context.Context, teamID uuid.UUID) (Record, error) {
	now := c.now()
	rec, err := c.store.Latest(ctx, teamID, now)
	if err != nil {
		return Record{}, err
	}
	if period := PeriodStart(now); !rec.PeriodStart.Equal(period) {
		rec = rec.carryOver(period)
		rec.TeamID = teamID
	}
	return rec, nil
}

// Registry exposes a counter for every resource with a usage column.
func (c *Counter) Registry() limits.CounterRegistry {
	reg := limits.NewRegistry()
	for _, res := range limits.Resources {
		if _, ok := column(res); !ok {
			continue
		}
		reg.Register(res, func(ctx context.Context, teamID uuid.UUID) (int64, error) {
			return c.Count(ctx, teamID, res)
		})
	}
	return reg
}

// Add changes the current month's counter by delta, for example -1 when a
// board is deleted.
func (c *Counter) Add(ctx context.Context, teamID uuid.UUID, res limits.Resource, delta int64) (Record, error) {
	return c.store.Increment(ctx, teamID, c.now(), res, delta)
}

// Reserve takes one unit of res within limit in the current month.
func (c *Counter) Reserve(ctx context.Context, teamID uuid.UUID, res limits.Resource, limit int64) (Record, error) {
	rec, err := c.store.Reserve(ctx, teamID, c.now(), res, limit)
	switch {
	case err == nil:
		metrics.ObserveReservation(res, OutcomeReserved)
	case errors.Is(err, ErrQuotaExhausted):
		metrics.ObserveReservation(res, OutcomeExhausted)
		c.logger.InfoContext(ctx, "reservation refused, quota exhausted",
			logger.TeamID(teamID),
			logger.Resource(string(res)),
			slog.Int64("limit", limit),
		)
	default:
		metrics.ObserveReservation(res, OutcomeError)
	}
	return rec, err
}

// ReserveForPlan reserves res against the limit of the team's current plan.
// It returns limits.ErrLimitExceeded joined with ErrQuotaExhausted when the
// quota is used up.
func (c *Counter) ReserveForPlan(ctx context.Context, svc limits.LimitsService, teamID uuid.UUID, res limits.Resource) (Record, error) {
	plan, err := svc.PlanFor(ctx, teamID)
	if err != nil {
		return Record{}, err
	}
	limit, ok := plan.Limit(res)
	if !ok {
		return Record{}, limits.ErrInvalidResource
	}
	rec, err := c.Reserve(ctx, teamID, res, limit)
	if errors.Is(err, ErrQuotaExhausted) {
		return rec, errors.Join(limits.ErrLimitExceeded, err)
	}
	return rec, err
}
