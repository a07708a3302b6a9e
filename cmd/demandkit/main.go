// Command demandkit serves plan quotas, usage reservations, board service
// quotas and live timers over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kanbanhq/demandkit/internal/db/migrations"
	"github.com/kanbanhq/demandkit/pkg/config"
	"github.com/kanbanhq/demandkit/pkg/httpserver"
	"github.com/kanbanhq/demandkit/pkg/limits"
	"github.com/kanbanhq/demandkit/pkg/logger"
	"github.com/kanbanhq/demandkit/pkg/metrics"
	"github.com/kanbanhq/demandkit/pkg/pg"
	"github.com/kanbanhq/demandkit/pkg/ratelimiter"
	"github.com/kanbanhq/demandkit/pkg/redis"
	"github.com/kanbanhq/demandkit/svc/api"
	"github.com/kanbanhq/demandkit/svc/subscription"
	"github.com/kanbanhq/demandkit/svc/timetrack"
	"github.com/kanbanhq/demandkit/svc/usage"
)

type appConfig struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	PlansFile     string        `env:"PLANS_FILE"` // YAML plan catalogue; empty means Starter only
	UsageCache    bool          `env:"USAGE_CACHE_ENABLED" envDefault:"true"`
	UsageCacheTTL time.Duration `env:"USAGE_CACHE_TTL" envDefault:"1m"`
	RateLimit     bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("demandkit stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		app       appConfig
		pgCfg     pg.Config
		redisCfg  redis.Config
		httpCfg   httpserver.Config
		apiCfg    api.Config
		paddleCfg subscription.PaddleConfig
		rlCfg     ratelimiter.Config
	)
	if err := errors.Join(
		config.Load(&app),
		config.Load(&pgCfg),
		config.Load(&redisCfg),
		config.Load(&httpCfg),
		config.Load(&apiCfg),
		config.Load(&paddleCfg),
		config.Load(&rlCfg),
	); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(app.Env, "demandkit"),
		logger.WithContextValue("request_id", middleware.RequestIDKey),
	)
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if pgCfg.AutoMigrate {
		if err := pg.Migrate(ctx, pool, pgCfg, migrations.FS, log); err != nil {
			return err
		}
	}

	rdb, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	plans := limits.NewInMemSource()
	if app.PlansFile != "" {
		if plans, err = limits.NewYAMLFileSource(app.PlansFile); err != nil {
			return err
		}
	}

	resolver := subscription.NewPlanResolver(subscription.NewPGStore(pool),
		subscription.WithResolverLogger(log),
	)
	lifecycle := subscription.NewLifecycle(resolver, subscription.WithLifecycleLogger(log))
	webhooks, err := subscription.NewPaddleWebhookParser(paddleCfg)
	if err != nil {
		return err
	}

	var usageStore usage.Store = usage.NewPGStore(pool)
	if app.UsageCache {
		usageStore = usage.NewCachedStore(usageStore, rdb,
			usage.WithKeyPrefix(redisCfg.KeyPrefix),
			usage.WithCacheTTL(app.UsageCacheTTL),
			usage.WithCacheLogger(log),
		)
	}
	counter := usage.NewCounter(usageStore, usage.WithLogger(log))

	limitsSvc, err := limits.NewLimitsService(ctx, plans, counter.Registry(),
		limits.WithPlanIDResolver(resolver.Resolve),
		limits.WithLogger(log),
		limits.WithDecisionObserver(metrics.ObserveDecision),
	)
	if err != nil {
		return err
	}

	timers := timetrack.NewService(timetrack.NewPGStore(pool), timetrack.WithLogger(log))
	defer timers.Close()

	var limiter ratelimiter.RateLimiter
	if app.RateLimit {
		bucket, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(rdb, redisCfg.KeyPrefix), rlCfg)
		if err != nil {
			return err
		}
		limiter = bucket
	}

	handler := api.NewRouter(apiCfg, api.Deps{
		Limits:    limitsSvc,
		Counter:   counter,
		Quotas:    usage.NewQuotas(usage.NewPGQuotaSource(pool), nil),
		Timers:    timers,
		Webhooks:  webhooks,
		Lifecycle: lifecycle,
		Checks: []httpserver.Check{
			{Name: "postgres", Probe: pg.Healthcheck(pool)},
			{Name: "redis", Probe: redis.Healthcheck(rdb)},
		},
		Logger:      log,
		RateLimiter: limiter,
	})

	return httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log)).Run(ctx, handler)
}
