package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kanbanhq/demandkit/pkg/statemachine"
	"github.com/kanbanhq/demandkit/svc/subscription"
)

func TestSubscription_DaysRemainingAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  time.Time
		want int
	}{
		{"unknown period", time.Time{}, 0},
		{"ended", now.Add(-time.Hour), 0},
		{"exactly now", now, 0},
		{"half a day rounds up", now.Add(12 * time.Hour), 1},
		{"a few hours round down", now.Add(5 * time.Hour), 0},
		{"seven days", now.Add(7 * 24 * time.Hour), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sub := subscription.Subscription{Status: subscription.StatusActive, CurrentPeriodEnd: tt.end}
			assert.Equal(t, tt.want, sub.DaysRemainingAt(now))
		})
	}
}

func TestSubscription_PeriodEndedAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.False(t, (&subscription.Subscription{}).PeriodEndedAt(now))
	assert.False(t, (&subscription.Subscription{CurrentPeriodEnd: now.Add(time.Second)}).PeriodEndedAt(now))
	assert.True(t, (&subscription.Subscription{CurrentPeriodEnd: now}).PeriodEndedAt(now))
}

func TestStatus_Entitled(t *testing.T) {
	t.Parallel()

	entitled := map[subscription.Status]bool{
		subscription.StatusTrialing: true,
		subscription.StatusActive:   true,
		subscription.StatusPastDue:  true,
		subscription.StatusCanceled: false,
		subscription.StatusInactive: false,
		"bogus":                     false,
	}
	for status, want := range entitled {
		assert.Equal(t, want, status.Entitled(), "status %q", status)
	}
	assert.False(t, subscription.Status("bogus").Valid())
}

func TestTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	allowed := [][2]subscription.Status{
		{subscription.StatusTrialing, subscription.StatusActive},
		{subscription.StatusActive, subscription.StatusPastDue},
		{subscription.StatusPastDue, subscription.StatusActive},
		{subscription.StatusActive, subscription.StatusCanceled},
		{subscription.StatusTrialing, subscription.StatusCanceled},
		{subscription.StatusPastDue, subscription.StatusCanceled},
		{subscription.StatusCanceled, subscription.StatusActive},
		{subscription.StatusInactive, subscription.StatusActive},
		{subscription.StatusActive, subscription.StatusInactive},
		{subscription.StatusTrialing, subscription.StatusInactive},
		{subscription.StatusPastDue, subscription.StatusInactive},
		{subscription.StatusCanceled, subscription.StatusInactive},
		{subscription.StatusActive, subscription.StatusActive},
	}
	for _, tr := range allowed {
		t.Run(string(tr[0])+"->"+string(tr[1]), func(t *testing.T) {
			t.Parallel()
			assert.True(t, subscription.CanTransition(tr[0], tr[1]))
			assert.NoError(t, subscription.Transition(ctx, tr[0], tr[1]))
		})
	}

	rejected := [][2]subscription.Status{
		{subscription.StatusActive, subscription.StatusTrialing},
		{subscription.StatusTrialing, subscription.StatusPastDue},
		{subscription.StatusCanceled, subscription.StatusPastDue},
		{subscription.StatusInactive, subscription.StatusCanceled},
		{subscription.StatusInactive, subscription.StatusPastDue},
	}
	for _, tr := range rejected {
		t.Run(string(tr[0])+"-x->"+string(tr[1]), func(t *testing.T) {
			t.Parallel()
			assert.False(t, subscription.CanTransition(tr[0], tr[1]))
			err := subscription.Transition(ctx, tr[0], tr[1])
			assert.ErrorIs(t, err, subscription.ErrInvalidStatusTransition)
			assert.True(t, statemachine.IsNoTransitionAvailableError(err))
		})
	}

	t.Run("unknown status", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, subscription.Transition(ctx, "bogus", subscription.StatusActive), subscription.ErrInvalidStatus)
		assert.False(t, subscription.CanTransition("bogus", "bogus"))
	})
}
