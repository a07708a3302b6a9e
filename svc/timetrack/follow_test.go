package timetrack_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/demandkit/pkg/elapsed"
	"github.com/kanbanhq/demandkit/svc/timetrack"
)

func TestService_Follow(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := newClock()
	svc, _ := newService(t, clock)
	teamID := uuid.New()

	// Running before Follow starts; picked up by the initial load
	seeded, err := svc.Start(ctx, teamID, uuid.New(), uuid.New())
	require.NoError(t, err)

	group := elapsed.NewGroup(ctx,
		elapsed.WithClock(elapsed.ClockFunc(clock.Now)),
		elapsed.WithScheduler(noTicks{}),
	)
	done := make(chan error, 1)
	go func() { done <- svc.Follow(ctx, teamID, group) }()

	require.Eventually(t, func() bool {
		_, ok := group.Snapshot()[seeded.TimerKey()]
		return ok
	}, time.Second, 10*time.Millisecond)

	clock.Advance(time.Hour + 65*time.Second)
	assert.Equal(t, "01:01:05", group.Snapshot()[seeded.TimerKey()].Display)

	later, err := svc.Start(ctx, teamID, uuid.New(), uuid.New())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return group.Len() == 2 }, time.Second, 10*time.Millisecond)

	_, err = svc.Stop(ctx, seeded.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := group.Snapshot()[seeded.TimerKey()]
		return !ok
	}, time.Second, 10*time.Millisecond)

	reading := group.Snapshot()[later.TimerKey()]
	assert.True(t, reading.Running)
	assert.Equal(t, "00:00:00", reading.Display)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("follow did not return after cancel")
	}
}

func TestService_FollowEndsOnClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := timetrack.NewService(timetrack.NewMemoryStore())
	group := elapsed.NewGroup(ctx, elapsed.WithScheduler(noTicks{}))
	t.Cleanup(group.Close)

	done := make(chan error, 1)
	go func() { done <- svc.Follow(ctx, uuid.New(), group) }()

	// Close may race with Subscribe; a subscription after Close is already closed.
	require.NoError(t, svc.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("follow did not return after close")
	}
}
