package ratelimiter

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kanbanhq/demandkit/pkg/redis"
)

// consumeScript mirrors refill and MemoryStore.ConsumeTokens. Times are
// unix milliseconds supplied by the caller's clock.
//
// KEYS[1] bucket hash
// ARGV capacity, refill rate, interval ms, now ms, tokens, ttl ms
var consumeScript = goredis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local want = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'refilled')
local tokens = tonumber(state[1])
local refilled = tonumber(state[2])
if tokens == nil or refilled == nil then
	tokens = capacity
	refilled = now
end

if now > refilled then
	local intervals = math.floor((now - refilled) / interval)
	if intervals > 0 then
		intervals = math.min(intervals, math.floor(capacity / rate) + 1)
		tokens = math.min(capacity, tokens + intervals * rate)
		if tokens == capacity then
			refilled = now
		else
			refilled = refilled + intervals * interval
		end
	end
end

local remaining = tokens - want
if remaining >= 0 then
	tokens = remaining
end
redis.call('HSET', KEYS[1], 'tokens', string.format('%.0f', tokens), 'refilled', string.format('%.0f', refilled))
redis.call('PEXPIRE', KEYS[1], ttl)
return {remaining, refilled + interval}
`)

// RedisStore keeps buckets in Redis so every instance shares them.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewRedisStore returns a store writing keys under prefix. Panics on nil client.
func NewRedisStore(client goredis.UniversalClient, prefix string) *RedisStore {
	if client == nil {
		panic("ratelimiter: redis client is required")
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config, now time.Time) (int, time.Time, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(key)},
		cfg.Capacity,
		cfg.RefillRate,
		cfg.RefillInterval.Milliseconds(),
		now.UnixMilli(),
		tokens,
		cfg.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, errors.New("unexpected script reply"))
	}
	return int(res[0]), time.UnixMilli(res[1]), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) key(k string) string {
	return redis.Key(s.prefix, "ratelimit", k)
}
