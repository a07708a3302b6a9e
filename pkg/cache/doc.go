// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
// It backs short-lived lookups that are expensive to repeat on every request,
// such as a team's resolved subscription plan:
//
//	plans := cache.NewLRUCache[uuid.UUID, string](10_000,
//	    cache.WithTTL[uuid.UUID, string](time.Minute),
//	)
//	plans.Put(teamID, "pro")
//	if id, ok := plans.Get(teamID); ok {
//	    // served from memory
//	}
//
// Writers that change the underlying data call Remove so readers never see a
// value older than the write.
package cache
