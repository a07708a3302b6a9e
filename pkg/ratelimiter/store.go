package ratelimiter

import (
	"context"
	"time"
)

// Store keeps bucket state. ConsumeTokens refills the bucket for the time
// passed since its last refill, then takes tokens only if enough are left.
// It returns the tokens left, negative when nothing was taken, and the time
// of the next refill.
type Store interface {
	ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config, now time.Time) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}
