package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type bucketState struct {
	tokens   int
	refilled time.Time
	expires  time.Time
}

// refill adds the tokens earned by whole intervals since refilled. The
// refill time only advances by whole intervals so partial progress is kept.
func refill(s bucketState, cfg Config, now time.Time) bucketState {
	if now.Before(s.refilled) {
		return s
	}
	intervals := int(now.Sub(s.refilled) / cfg.RefillInterval)
	if intervals == 0 {
		return s
	}
	// Past a full refill the count no longer matters; cap it so the
	// multiplication cannot overflow.
	intervals = min(intervals, cfg.Capacity/cfg.RefillRate+1)
	s.tokens = min(cfg.Capacity, s.tokens+intervals*cfg.RefillRate)
	if s.tokens == cfg.Capacity {
		s.refilled = now
	} else {
		s.refilled = s.refilled.Add(time.Duration(intervals) * cfg.RefillInterval)
	}
	return s
}

// MemoryStore keeps buckets in process. Buckets idle long enough to have
// refilled completely are swept on write.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]bucketState
	writes  int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]bucketState)}
}

// sweepEvery is how many writes pass between sweeps.
const sweepEvery = 1024

func (s *MemoryStore) ConsumeTokens(_ context.Context, key string, tokens int, cfg Config, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.buckets[key]
	if !ok || now.After(st.expires) {
		st = bucketState{tokens: cfg.Capacity, refilled: now}
	}
	st = refill(st, cfg, now)

	remaining := st.tokens - tokens
	if remaining >= 0 {
		st.tokens = remaining
	}
	st.expires = now.Add(cfg.ttl())
	s.buckets[key] = st

	if s.writes++; s.writes%sweepEvery == 0 {
		s.sweep(now)
	}
	return remaining, st.refilled.Add(cfg.RefillInterval), nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// Len returns the number of tracked buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *MemoryStore) sweep(now time.Time) {
	for key, st := range s.buckets {
		if now.After(st.expires) {
			delete(s.buckets, key)
		}
	}
}
