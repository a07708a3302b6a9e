package timetrack_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/demandkit/pkg/logger"
	"github.com/kanbanhq/demandkit/svc/timetrack"
)

func newService(t *testing.T, clock *manualClock, opts ...timetrack.Option) (*timetrack.Service, *timetrack.MemoryStore) {
	t.Helper()
	store := timetrack.NewMemoryStore()
	opts = append([]timetrack.Option{
		timetrack.WithClock(clock.Now),
		timetrack.WithLogger(logger.Discard()),
	}, opts...)
	svc := timetrack.NewService(store, opts...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, store
}

func TestService_StartStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("stop folds the interval", func(t *testing.T) {
		t.Parallel()

		clock := newClock()
		svc, _ := newService(t, clock)
		teamID, demandID, userID := uuid.New(), uuid.New(), uuid.New()

		e, err := svc.Start(ctx, teamID, demandID, userID)
		require.NoError(t, err)
		assert.True(t, e.Active)
		assert.Equal(t, clock.Now(), e.LastStartedAt)

		clock.Advance(time.Hour + 65*time.Second)
		e, err = svc.Stop(ctx, e.ID)
		require.NoError(t, err)
		assert.False(t, e.Active)
		assert.Equal(t, int64(3665), e.BaseSeconds)
		assert.True(t, e.LastStartedAt.IsZero())

		clock.Advance(time.Hour)
		again, err := svc.Stop(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3665), again.BaseSeconds, "stopped entries do not grow")

		e, err = svc.Resume(ctx, e.ID)
		require.NoError(t, err)
		clock.Advance(10 * time.Second)
		e, err = svc.Stop(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3675), e.BaseSeconds)
	})

	t.Run("start is idempotent per user and demand", func(t *testing.T) {
		t.Parallel()

		clock := newClock()
		svc, _ := newService(t, clock)
		teamID, demandID, userID := uuid.New(), uuid.New(), uuid.New()

		first, err := svc.Start(ctx, teamID, demandID, userID)
		require.NoError(t, err)
		clock.Advance(time.Minute)
		second, err := svc.Start(ctx, teamID, demandID, userID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.LastStartedAt, second.LastStartedAt)

		active, err := svc.ListActive(ctx, teamID)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("start validates IDs", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t, newClock())
		_, err := svc.Start(ctx, uuid.Nil, uuid.New(), uuid.New())
		assert.ErrorIs(t, err, timetrack.ErrMissingTeamID)
		_, err = svc.Start(ctx, uuid.New(), uuid.Nil, uuid.New())
		assert.ErrorIs(t, err, timetrack.ErrMissingDemandID)
		_, err = svc.Start(ctx, uuid.New(), uuid.New(), uuid.Nil)
		assert.ErrorIs(t, err, timetrack.ErrMissingUserID)
	})

	t.Run("unknown entries", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t, newClock())
		_, err := svc.Stop(ctx, uuid.New())
		assert.ErrorIs(t, err, timetrack.ErrEntryNotFound)
		_, err = svc.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, timetrack.ErrEntryNotFound)
	})

	t.Run("running entry without start time stops at its base", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		clock := newClock()
		svc, store := newService(t, clock, timetrack.WithLogger(logger.New(logger.WithOutput(&buf))))
		e := &timetrack.Entry{
			ID: uuid.New(), TeamID: uuid.New(), DemandID: uuid.New(), UserID: uuid.New(),
			BaseSeconds: 120, Active: true,
		}
		require.NoError(t, store.Save(ctx, e))

		got, err := svc.Stop(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(120), got.BaseSeconds)
		assert.Contains(t, buf.String(), "no start time")
	})
}

func TestService_ActiveTimers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	svc, _ := newService(t, clock)
	teamID := uuid.New()

	_, err := svc.Start(ctx, teamID, uuid.New(), uuid.New())
	require.NoError(t, err)
	clock.Advance(90 * time.Second)

	timers, err := svc.ActiveTimers(ctx, teamID)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, int64(90), timers[0].Seconds)
	assert.Equal(t, "00:01:30", timers[0].Display)

	empty, err := svc.ActiveTimers(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestService_PublishesChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newService(t, newClock())
	teamID := uuid.New()

	sub := svc.Subscribe(ctx, teamID)
	otherTeam := svc.Subscribe(ctx, uuid.New())

	e, err := svc.Start(ctx, teamID, uuid.New(), uuid.New())
	require.NoError(t, err)

	select {
	case msg := <-sub.Receive():
		assert.Equal(t, timetrack.Change{EntryID: e.ID, TeamID: teamID}, msg.Data)
		assert.Equal(t, timetrack.Topic(teamID), msg.Topic)
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}

	select {
	case msg := <-otherTeam.Receive():
		t.Fatalf("unexpected change for another team: %+v", msg)
	default:
	}
}
