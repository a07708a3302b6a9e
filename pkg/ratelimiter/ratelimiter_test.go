package ratelimiter_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/demandkit/pkg/ratelimiter"
	"github.com/kanbanhq/demandkit/pkg/redis"
)

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

func newClock() *manualClock {
	return &manualClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

var cfg = ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Second}

func storeFactories() map[string]func(t *testing.T) ratelimiter.Store {
	return map[string]func(t *testing.T) ratelimiter.Store{
		"memory": func(*testing.T) ratelimiter.Store { return ratelimiter.NewMemoryStore() },
		"redis": func(t *testing.T) ratelimiter.Store {
			url := os.Getenv("REDIS_URL")
			if url == "" {
				t.Skip("REDIS_URL not set")
			}
			client, err := redis.Connect(context.Background(), redis.Config{ConnectionURL: url, RetryAttempts: 1})
			require.NoError(t, err)
			t.Cleanup(func() { _ = client.Close() })
			return ratelimiter.NewRedisStore(client, "demandkit-test")
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, cfg.Validate())
	for _, bad := range []ratelimiter.Config{
		{Capacity: 0, RefillRate: 1, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: 0, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: 1},
	} {
		assert.ErrorIs(t, bad.Validate(), ratelimiter.ErrInvalidConfig)
		_, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), bad)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	}
}

func TestBucket(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("burst then deny", func(t *testing.T) {
				t.Parallel()

				clock := newClock()
				b, err := ratelimiter.NewBucket(newStore(t), cfg, ratelimiter.WithClock(clock.Now))
				require.NoError(t, err)
				key := uuid.NewString()

				for want := 2; want >= 0; want-- {
					res, err := b.Allow(ctx, key)
					require.NoError(t, err)
					assert.True(t, res.Allowed())
					assert.Equal(t, want, res.Remaining)
					assert.Equal(t, 3, res.Limit)
				}

				res, err := b.Allow(ctx, key)
				require.NoError(t, err)
				assert.False(t, res.Allowed())
				assert.Equal(t, time.Second, res.RetryAfter(clock.Now()))
			})

			t.Run("denials do not drain the bucket", func(t *testing.T) {
				t.Parallel()

				clock := newClock()
				b, err := ratelimiter.NewBucket(newStore(t), cfg, ratelimiter.WithClock(clock.Now))
				require.NoError(t, err)
				key := uuid.NewString()

				_, err = b.AllowN(ctx, key, 3)
				require.NoError(t, err)
				for range 5 {
					res, err := b.Allow(ctx, key)
					require.NoError(t, err)
					require.False(t, res.Allowed())
				}

				clock.Advance(time.Second)
				res, err := b.Allow(ctx, key)
				require.NoError(t, err)
				assert.True(t, res.Allowed())
				assert.Zero(t, res.Remaining)
			})

			t.Run("refill keeps partial intervals and caps at capacity", func(t *testing.T) {
				t.Parallel()

				clock := newClock()
				b, err := ratelimiter.NewBucket(newStore(t), cfg, ratelimiter.WithClock(clock.Now))
				require.NoError(t, err)
				key := uuid.NewString()

				_, err = b.AllowN(ctx, key, 3)
				require.NoError(t, err)

				clock.Advance(1500 * time.Millisecond)
				res, err := b.Status(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, 1, res.Remaining)

				// The half interval carried over completes here
				clock.Advance(500 * time.Millisecond)
				res, err = b.Status(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, 2, res.Remaining)

				clock.Advance(time.Hour)
				res, err = b.Status(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, 3, res.Remaining)
			})

			t.Run("reset refills", func(t *testing.T) {
				t.Parallel()

				clock := newClock()
				b, err := ratelimiter.NewBucket(newStore(t), cfg, ratelimiter.WithClock(clock.Now))
				require.NoError(t, err)
				key := uuid.NewString()

				_, err = b.AllowN(ctx, key, 3)
				require.NoError(t, err)
				require.NoError(t, b.Reset(ctx, key))

				res, err := b.Allow(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, 2, res.Remaining)
			})
		})
	}
}

func TestBucket_InvalidTokenCount(t *testing.T) {
	t.Parallel()

	b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), cfg)
	require.NoError(t, err)
	_, err = b.AllowN(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
		Capacity: 50, RefillRate: 1, RefillInterval: time.Hour,
	})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Allow(ctx, "shared")
			if err == nil && res.Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
