package usage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kanbanhq/demandkit/pkg/limits"
	"github.com/kanbanhq/demandkit/pkg/logger"
	"github.com/kanbanhq/demandkit/pkg/redis"
)

const DefaultCacheTTL = time.Minute

// CachedStore is a read-through Redis cache in front of another Store.
//
// All cached reads for a team live in one hash and every write drops it. A
// read that races a write may cache the older record until the TTL expires,
// so quota enforcement goes through Reserve, which is never cached. Redis
// failures are logged and fall through to the wrapped store.
type CachedStore struct {
	next   Store
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// CacheOption configures a CachedStore.
type CacheOption func(*CachedStore)

// WithKeyPrefix namespaces cache keys.
func WithKeyPrefix(prefix string) CacheOption {
	return func(s *CachedStore) { s.prefix = prefix }
}

// WithCacheTTL bounds how long cached reads live without writes.
func WithCacheTTL(d time.Duration) CacheOption {
	return func(s *CachedStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(s *CachedStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewCachedStore wraps next. Panics on nil arguments.
func NewCachedStore(next Store, client goredis.UniversalClient, opts ...CacheOption) *CachedStore {
	if next == nil || client == nil {
		panic("usage: store and redis client are required")
	}
	s := &CachedStore{next: next, client: client, ttl: DefaultCacheTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("usage.cache"))
	return s
}

var _ Store = (*CachedStore)(nil)

func (s *CachedStore) Get(ctx context.Context, teamID uuid.UUID, period time.Time) (Record, error) {
	return s.readThrough(ctx, teamID, "get:"+monthKey(period), func() (Record, error) {
		return s.next.Get(ctx, teamID, period)
	})
}

func (s *CachedStore) Latest(ctx context.Context, teamID uuid.UUID, at time.Time) (Record, error) {
	return s.readThrough(ctx, teamID, "latest:"+monthKey(at), func() (Record, error) {
		return s.next.Latest(ctx, teamID, at)
	})
}

func (s *CachedStore) Increment(ctx context.Context, teamID uuid.UUID, period time.Time, res limits.Resource, delta int64) (Record, error) {
	rec, err := s.next.Increment(ctx, teamID, period, res, delta)
	s.invalidate(ctx, teamID)
	return rec, err
}

// Reserve always goes to the wrapped store, which owns serialization.
func (s *CachedStore) Reserve(ctx context.Context, teamID uuid.UUID, period time.Time, res limits.Resource, limit int64) (Record, error) {
	rec, err := s.next.Reserve(ctx, teamID, period, res, limit)
	if err == nil {
		s.invalidate(ctx, teamID)
	}
	return rec, err
}

func (s *CachedStore) readThrough(ctx context.Context, teamID uuid.UUID, field string, load func() (Record, error)) (Record, error) {
	key := s.key(teamID)

	raw, err := s.client.HGet(ctx, key, field).Bytes()
	switch {
	case err == nil:
		var rec Record
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			return rec, nil
		}
		s.logger.WarnContext(ctx, "discarding undecodable usage cache entry", logger.TeamID(teamID))
	case !errors.Is(err, goredis.Nil):
		s.logger.WarnContext(ctx, "usage cache read failed", logger.TeamID(teamID), logger.Error(err))
	}

	rec, err := load()
	if err != nil {
		return Record{}, err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return rec, nil
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, field, payload)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WarnContext(ctx, "usage cache write failed", logger.TeamID(teamID), logger.Error(err))
	}
	return rec, nil
}

func (s *CachedStore) invalidate(ctx context.Context, teamID uuid.UUID) {
	if err := s.client.Del(ctx, s.key(teamID)).Err(); err != nil {
		s.logger.ErrorContext(ctx, "usage cache invalidation failed, entries expire with their ttl",
			logger.TeamID(teamID),
			logger.Error(err),
		)
	}
}

func (s *CachedStore) key(teamID uuid.UUID) string {
	return redis.Key(s.prefix, "usage", teamID.String())
}

func monthKey(t time.Time) string {
	return PeriodStart(t).Format("2006-01")
}
