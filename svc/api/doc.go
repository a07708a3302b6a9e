// Package api exposes quotas, usage, live timers and the billing webhook
// over HTTP with a go-chi router.
//
// Every response uses the same JSON envelope:
//
//	{"data": ...}
//	{"error": {"code": "not_found", "message": "Not Found"}}
//
// Quota checks are advisory. POST .../reserve is the authoritative path: it
// takes one unit of the resource against the team's plan in a single
// serialized step and answers 402 limit_exceeded when nothing is left.
// Writes are throttled per team when Deps.RateLimiter is set; throttled
// requests get 429 rate_limited.
//
// GET /teams/{teamID}/timers/stream is the one non-JSON route: it keeps a
// Server-Sent Events connection open and pushes each running timer's display
// as a Datastar signal patch once per second.
//
// The Paddle webhook answers 2xx for events that will never apply (stale,
// unsupported, rejected by the lifecycle) so the provider stops retrying
// them, and 5xx only for failures a retry may fix.
package api
