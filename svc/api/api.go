package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/httpserver"
	"github.com/kanbanhq/demandkit/pkg/limits"
	"github.com/kanbanhq/demandkit/pkg/logger"
	"github.com/kanbanhq/demandkit/pkg/metrics"
	"github.com/kanbanhq/demandkit/pkg/ratelimiter"
	"github.com/kanbanhq/demandkit/svc/subscription"
	"github.com/kanbanhq/demandkit/svc/timetrack"
	"github.com/kanbanhq/demandkit/svc/usage"
)

// Config holds API settings, loaded with pkg/config.
type Config struct {
	RequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" envDefault:"30s"`
	HealthTimeout  time.Duration `env:"API_HEALTH_TIMEOUT" envDefault:"2s"`
}

// WebhookParser turns a signed provider request into a lifecycle event.
type WebhookParser interface {
	ParseRequest(r *http.Request) (subscription.WebhookEvent, error)
}

// SubscriptionApplier applies lifecycle events to stored subscriptions.
type SubscriptionApplier interface {
	Apply(ctx context.Context, ev subscription.WebhookEvent) (*subscription.Subscription, error)
}

// Deps are the services behind the routes. Checks feed /healthz.
type Deps struct {
	Limits    limits.LimitsService
	Counter   *usage.Counter
	Quotas    *usage.Quotas
	Timers    *timetrack.Service
	Webhooks  WebhookParser
	Lifecycle SubscriptionApplier
	Checks    []httpserver.Check
	Logger    *slog.Logger
	// RateLimiter throttles writes per team when set.
	RateLimiter ratelimiter.RateLimiter
	// Now picks the reported usage month; defaults to time.Now.
	Now func() time.Time
}

type api struct {
	Deps
	log *slog.Logger
}

// NewRouter builds the HTTP handler. Panics when a service is missing.
func NewRouter(cfg Config, deps Deps) http.Handler {
	switch {
	case deps.Limits == nil:
		panic("api: limits service is required")
	case deps.Counter == nil:
		panic("api: usage counter is required")
	case deps.Quotas == nil:
		panic("api: quotas are required")
	case deps.Timers == nil:
		panic("api: timetrack service is required")
	case deps.Webhooks == nil || deps.Lifecycle == nil:
		panic("api: webhook parser and lifecycle are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	a := &api{Deps: deps, log: deps.Logger.With(logger.Component("api"))}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		metrics.Middleware,
		logRequests(a.log),
		middleware.Recoverer,
	)

	r.Get("/healthz", httpserver.HealthHandler(a.log, cfg.HealthTimeout, deps.Checks...))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/webhooks/paddle", a.paddleWebhook)
	// Long-lived, so kept out of the request timeout.
	r.Get("/teams/{teamID}/timers/stream", a.streamTimers)

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}

		r.Route("/teams/{teamID}", func(r chi.Router) {
			r.Get("/usage", a.teamUsage)
			r.Get("/resources/{resource}/check", a.checkResource)
			r.Get("/timers", a.activeTimers)

			r.Group(func(r chi.Router) {
				if deps.RateLimiter != nil {
					r.Use(a.throttle(deps.RateLimiter))
				}
				r.Post("/resources/{resource}/reserve", a.reserveResource)
				r.Post("/timers", a.startTimer)
			})
		})
		r.Get("/boards/{boardID}/quotas", a.boardQuotas)
		r.Post("/timers/{entryID}/stop", a.stopTimer)
		r.Post("/timers/{entryID}/resume", a.resumeTimer)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, a.log, ErrNotFound)
	})
	return r
}

// throttle limits writes per team. Limiter failures are logged and the
// request goes through.
func (a *api) throttle(limiter ratelimiter.RateLimiter) func(http.Handler) http.Handler {
	teamKey := func(r *http.Request) string {
		if id := chi.URLParam(r, "teamID"); id != "" {
			return "team:" + id
		}
		return ""
	}
	return ratelimiter.Middleware(limiter, teamKey,
		ratelimiter.WithDeniedHandler(func(w http.ResponseWriter, r *http.Request, _ ratelimiter.Result) {
			respondError(w, r, a.log, ErrTooManyRequests)
		}),
		ratelimiter.WithErrorHandler(func(_ http.ResponseWriter, r *http.Request, err error) bool {
			a.log.WarnContext(r.Context(), "rate limiter unavailable", logger.Error(err))
			return true
		}),
	)
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrBadRequest
	}
	return id, nil
}

func resourceParam(r *http.Request) (limits.Resource, error) {
	res := limits.Resource(chi.URLParam(r, "resource"))
	if !res.Valid() {
		return "", limits.ErrInvalidResource
	}
	return res, nil
}

// logRequests writes one line per request with the status and latency.
// The request ID is attached by the logger's context extractor.
func logRequests(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
