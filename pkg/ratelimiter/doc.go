// Package ratelimiter throttles requests with a token bucket.
//
// A bucket holds up to Capacity tokens and regains RefillRate tokens every
// RefillInterval. Each request takes one token; a request that finds too few
// tokens is denied without consuming any, so a client hammering a full
// bucket recovers as soon as the next refill lands.
//
// Two stores are provided. MemoryStore keeps buckets in process. RedisStore
// keeps them in Redis and refills and consumes in a single Lua script, so
// every API instance shares the same budget:
//
//	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(client, "demandkit"), cfg)
//	if err != nil {
//		return err
//	}
//	r.With(ratelimiter.Middleware(limiter, teamKey)).Post("/reserve", h)
//
// Middleware sets X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset on every response and Retry-After on denials. Store
// failures let the request through unless WithErrorHandler says otherwise.
package ratelimiter
