package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/demandkit/pkg/limits"
	"github.com/kanbanhq/demandkit/svc/subscription"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, teamID uuid.UUID) (*subscription.Subscription, error) {
	args := m.Called(ctx, teamID)
	sub, _ := args.Get(0).(*subscription.Subscription)
	return sub, args.Error(1)
}

func (m *mockStore) GetByProviderSubID(ctx context.Context, id string) (*subscription.Subscription, error) {
	args := m.Called(ctx, id)
	sub, _ := args.Get(0).(*subscription.Subscription)
	return sub, args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPlanResolver_Resolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("entitled statuses resolve to their plan", func(t *testing.T) {
		t.Parallel()

		for _, status := range []subscription.Status{subscription.StatusActive, subscription.StatusTrialing, subscription.StatusPastDue} {
			store := subscription.NewMemoryStore()
			teamID := uuid.New()
			require.NoError(t, store.Save(ctx, &subscription.Subscription{TeamID: teamID, PlanID: "pro", Status: status}))

			planID, err := subscription.NewPlanResolver(store).Resolve(ctx, teamID)
			require.NoError(t, err, "status %s", status)
			assert.Equal(t, "pro", planID)
		}
	})

	t.Run("ended subscriptions fall back", func(t *testing.T) {
		t.Parallel()

		for _, status := range []subscription.Status{subscription.StatusCanceled, subscription.StatusInactive} {
			store := subscription.NewMemoryStore()
			teamID := uuid.New()
			require.NoError(t, store.Save(ctx, &subscription.Subscription{TeamID: teamID, PlanID: "pro", Status: status}))

			_, err := subscription.NewPlanResolver(store).Resolve(ctx, teamID)
			assert.ErrorIs(t, err, limits.ErrPlanIDNotFound, "status %s", status)
		}
	})

	t.Run("missing subscription falls back", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.NewPlanResolver(subscription.NewMemoryStore()).Resolve(ctx, uuid.New())
		assert.ErrorIs(t, err, limits.ErrPlanIDNotFound)
	})

	t.Run("hits are cached", func(t *testing.T) {
		t.Parallel()

		teamID := uuid.New()
		store := &mockStore{}
		store.On("Get", mock.Anything, teamID).
			Return(&subscription.Subscription{TeamID: teamID, PlanID: "pro", Status: subscription.StatusActive}, nil).Once()

		r := subscription.NewPlanResolver(store)
		for range 3 {
			planID, err := r.Resolve(ctx, teamID)
			require.NoError(t, err)
			assert.Equal(t, "pro", planID)
		}
		store.AssertNumberOfCalls(t, "Get", 1)
	})

	t.Run("misses are cached", func(t *testing.T) {
		t.Parallel()

		teamID := uuid.New()
		store := &mockStore{}
		store.On("Get", mock.Anything, teamID).Return(nil, subscription.ErrSubscriptionNotFound).Once()

		r := subscription.NewPlanResolver(store)
		for range 2 {
			_, err := r.Resolve(ctx, teamID)
			assert.ErrorIs(t, err, limits.ErrPlanIDNotFound)
		}
		store.AssertNumberOfCalls(t, "Get", 1)
	})

	t.Run("store errors are not cached", func(t *testing.T) {
		t.Parallel()

		teamID := uuid.New()
		boom := errors.New("connection reset")
		store := &mockStore{}
		store.On("Get", mock.Anything, teamID).Return(nil, boom).Twice()

		r := subscription.NewPlanResolver(store)
		for range 2 {
			_, err := r.Resolve(ctx, teamID)
			assert.ErrorIs(t, err, boom)
		}
		store.AssertExpectations(t)
	})

	t.Run("entries expire", func(t *testing.T) {
		t.Parallel()

		clock := &manualClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
		teamID := uuid.New()
		store := &mockStore{}
		store.On("Get", mock.Anything, teamID).
			Return(&subscription.Subscription{TeamID: teamID, PlanID: "pro", Status: subscription.StatusActive}, nil)

		r := subscription.NewPlanResolver(store,
			subscription.WithCacheTTL(time.Minute),
			subscription.WithResolverClock(clock.Now),
		)
		_, _ = r.Resolve(ctx, teamID)
		clock.Advance(30 * time.Second)
		_, _ = r.Resolve(ctx, teamID)
		store.AssertNumberOfCalls(t, "Get", 1)

		clock.Advance(time.Minute)
		_, _ = r.Resolve(ctx, teamID)
		store.AssertNumberOfCalls(t, "Get", 2)
	})
}

func TestPlanResolver_SaveInvalidates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	teamID := uuid.New()
	r := subscription.NewPlanResolver(subscription.NewMemoryStore())

	_, err := r.Resolve(ctx, teamID)
	require.ErrorIs(t, err, limits.ErrPlanIDNotFound)

	require.NoError(t, r.Save(ctx, &subscription.Subscription{TeamID: teamID, PlanID: "pro", Status: subscription.StatusActive}))
	planID, err := r.Resolve(ctx, teamID)
	require.NoError(t, err)
	assert.Equal(t, "pro", planID)

	require.NoError(t, r.Save(ctx, &subscription.Subscription{TeamID: teamID, PlanID: "pro", Status: subscription.StatusCanceled}))
	_, err = r.Resolve(ctx, teamID)
	assert.ErrorIs(t, err, limits.ErrPlanIDNotFound)
}

func TestPlanResolver_FeedsLimitsService(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	teamID := uuid.New()

	r := subscription.NewPlanResolver(subscription.NewMemoryStore())
	pro := limits.Plan{ID: "pro", Name: "Pro", Limits: map[limits.Resource]int64{
		limits.ResourceBoards: limits.Unlimited,
	}}
	svc, err := limits.NewLimitsService(ctx, limits.NewInMemSource(pro), limits.CounterRegistry{
		limits.ResourceBoards: func(context.Context, uuid.UUID) (int64, error) { return 3, nil },
	}, limits.WithPlanIDResolver(r.Resolve))
	require.NoError(t, err)

	// Starter allows three boards
	assert.ErrorIs(t, svc.CanCreate(ctx, teamID, limits.ResourceBoards), limits.ErrLimitExceeded)

	require.NoError(t, r.Save(ctx, &subscription.Subscription{TeamID: teamID, PlanID: "pro", Status: subscription.StatusActive}))
	assert.NoError(t, svc.CanCreate(ctx, teamID, limits.ResourceBoards))
}
