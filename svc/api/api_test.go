package api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/demandkit/pkg/httpserver"
	"github.com/kanbanhq/demandkit/pkg/limits"
	"github.com/kanbanhq/demandkit/pkg/logger"
	"github.com/kanbanhq/demandkit/pkg/ratelimiter"
	"github.com/kanbanhq/demandkit/svc/api"
	"github.com/kanbanhq/demandkit/svc/subscription"
	"github.com/kanbanhq/demandkit/svc/timetrack"
	"github.com/kanbanhq/demandkit/svc/usage"
)

const webhookSecret = "pdl_ntfset_api_test"

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	handler  http.Handler
	quotas   *usage.MemoryQuotaSource
	resolver *subscription.PlanResolver
}

func newFixture(t *testing.T, opts ...func(*api.Deps)) *fixture {
	t.Helper()

	ctx := context.Background()
	clock := func() time.Time { return now }
	log := logger.Discard()

	resolver := subscription.NewPlanResolver(subscription.NewMemoryStore(), subscription.WithResolverClock(clock))
	counter := usage.NewCounter(usage.NewMemoryStore(), usage.WithClock(clock), usage.WithLogger(log))
	pro := limits.Plan{ID: "pro", Name: "Pro", Limits: map[limits.Resource]int64{
		limits.ResourceBoards:  limits.Unlimited,
		limits.ResourceDemands: 500,
	}}
	svc, err := limits.NewLimitsService(ctx, limits.NewInMemSource(pro), counter.Registry(),
		limits.WithPlanIDResolver(resolver.Resolve),
		limits.WithLogger(log),
	)
	require.NoError(t, err)

	parser, err := subscription.NewPaddleWebhookParser(subscription.PaddleConfig{WebhookSecret: webhookSecret})
	require.NoError(t, err)

	quotas := usage.NewMemoryQuotaSource()
	timers := timetrack.NewService(timetrack.NewMemoryStore(), timetrack.WithClock(clock), timetrack.WithLogger(log))
	t.Cleanup(func() { _ = timers.Close() })

	deps := api.Deps{
		Limits:    svc,
		Counter:   counter,
		Quotas:    usage.NewQuotas(quotas, clock),
		Timers:    timers,
		Webhooks:  parser,
		Lifecycle: subscription.NewLifecycle(resolver, subscription.WithLifecycleLogger(log)),
		Logger:    log,
		Now:       clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &fixture{
		handler:  api.NewRouter(api.Config{}, deps),
		quotas:   quotas,
		resolver: resolver,
	}
}

func withChecks(checks ...httpserver.Check) func(*api.Deps) {
	return func(d *api.Deps) { d.Checks = checks }
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *api.ErrorDetail `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, header ...string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func sign(body []byte) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(ts + ":"))
	mac.Write(body)
	return fmt.Sprintf("ts=%s;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, withChecks(httpserver.Check{Name: "postgres", Probe: func(context.Context) error { return nil }}))
		code, _ := f.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("failing dependency", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, withChecks(httpserver.Check{Name: "redis", Probe: func(context.Context) error { return errors.New("down") }}))
		code, _ := f.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.do(t, http.MethodGet, "/teams/"+uuid.NewString()+"/resources/boards/check", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "demandkit_http_requests_total")
}

func TestResources(t *testing.T) {
	t.Parallel()

	t.Run("reserve until the starter limit", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		team := "/teams/" + uuid.NewString()

		for range 3 {
			code, _ := f.do(t, http.MethodPost, team+"/resources/boards/reserve", nil)
			require.Equal(t, http.StatusOK, code)
		}
		code, env := f.do(t, http.MethodPost, team+"/resources/boards/reserve", nil)
		assert.Equal(t, http.StatusPaymentRequired, code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "limit_exceeded", env.Error.Code)

		code, env = f.do(t, http.MethodGet, team+"/resources/boards/check", nil)
		require.Equal(t, http.StatusOK, code)
		d := decode[map[string]any](t, env.Data)
		assert.Equal(t, false, d["can_create"])
		assert.Equal(t, float64(0), d["remaining"])

		code, env = f.do(t, http.MethodGet, team+"/usage", nil)
		require.Equal(t, http.StatusOK, code)
		overview := decode[api.TeamUsage](t, env.Data)
		assert.Equal(t, limits.StarterPlanID, overview.PlanID)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), overview.PeriodStart.UTC())
		require.Len(t, overview.Resources, len(limits.Resources))
		assert.Equal(t, limits.ResourceDemands, overview.Resources[0].Resource, "display order")

		boards := overview.Resources[1]
		assert.Equal(t, limits.ResourceBoards, boards.Resource)
		assert.Equal(t, int64(3), boards.Used)
		require.NotNil(t, boards.Limit)
		assert.Equal(t, int64(3), *boards.Limit)
		require.NotNil(t, boards.Remaining)
		assert.Zero(t, *boards.Remaining)
		assert.Equal(t, limits.BannerAt, boards.Banner)
	})

	t.Run("plan missing from catalogue uses starter limits", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		teamID := uuid.New()
		require.NoError(t, f.resolver.Save(context.Background(), &subscription.Subscription{
			TeamID: teamID, PlanID: "pri_01h_not_in_catalogue", Status: subscription.StatusActive,
		}))
		team := "/teams/" + teamID.String()

		code, env := f.do(t, http.MethodGet, team+"/usage", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, limits.StarterPlanID, decode[api.TeamUsage](t, env.Data).PlanID)

		code, env = f.do(t, http.MethodGet, team+"/resources/demands/check", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, float64(30), decode[map[string]any](t, env.Data)["remaining"])

		code, _ = f.do(t, http.MethodPost, team+"/resources/demands/reserve", nil)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("unknown resource", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		code, env := f.do(t, http.MethodGet, "/teams/"+uuid.NewString()+"/resources/widgets/check", nil)
		assert.Equal(t, http.StatusNotFound, code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "unknown_resource", env.Error.Code)
	})

	t.Run("malformed team ID", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		code, env := f.do(t, http.MethodGet, "/teams/not-a-uuid/usage", nil)
		assert.Equal(t, http.StatusBadRequest, code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "bad_request", env.Error.Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		code, env := f.do(t, http.MethodGet, "/nope", nil)
		assert.Equal(t, http.StatusNotFound, code)
		require.NotNil(t, env.Error)
	})
}

func TestBoardQuotas(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	boardID, limited, open := uuid.New(), uuid.New(), uuid.New()

	q, err := limits.NewServiceQuota(boardID, limited, 2)
	require.NoError(t, err)
	require.NoError(t, f.quotas.SetQuota(ctx, q))
	q, err = limits.NewServiceQuota(boardID, open, 0)
	require.NoError(t, err)
	require.NoError(t, f.quotas.SetQuota(ctx, q))

	for range 2 {
		require.NoError(t, f.quotas.AddDemand(ctx, usage.Demand{
			ID: uuid.New(), TeamID: uuid.New(), BoardID: boardID, ServiceID: limited, CreatedAt: now,
		}))
	}

	code, env := f.do(t, http.MethodGet, "/boards/"+boardID.String()+"/quotas", nil)
	require.Equal(t, http.StatusOK, code)
	statuses := decode[[]map[string]any](t, env.Data)
	require.Len(t, statuses, 2)

	byService := map[string]map[string]any{}
	for _, s := range statuses {
		byService[s["service_id"].(string)] = s
	}
	assert.Equal(t, true, byService[limited.String()]["is_limit_reached"])
	assert.Equal(t, float64(0), byService[limited.String()]["remaining"])
	assert.Nil(t, byService[open.String()]["remaining"])

	code, env = f.do(t, http.MethodGet, "/boards/"+uuid.NewString()+"/quotas", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestTimers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	team := "/teams/" + uuid.NewString()
	body := fmt.Sprintf(`{"demand_id":%q,"user_id":%q}`, uuid.NewString(), uuid.NewString())

	code, env := f.do(t, http.MethodPost, team+"/timers", strings.NewReader(body))
	require.Equal(t, http.StatusOK, code)
	entry := decode[timetrack.Entry](t, env.Data)
	assert.True(t, entry.Active)

	code, env = f.do(t, http.MethodGet, team+"/timers", nil)
	require.Equal(t, http.StatusOK, code)
	timers := decode[[]timetrack.ActiveTimer](t, env.Data)
	require.Len(t, timers, 1)
	assert.Equal(t, entry.ID, timers[0].ID)
	assert.Equal(t, "00:00:00", timers[0].Display)

	code, env = f.do(t, http.MethodPost, "/timers/"+entry.ID.String()+"/stop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decode[timetrack.Entry](t, env.Data).Active)

	code, _ = f.do(t, http.MethodPost, "/timers/"+uuid.NewString()+"/stop", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, team+"/timers", strings.NewReader(`{"demand_id":"x"}`))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPaddleWebhook(t *testing.T) {
	t.Parallel()

	post := func(t *testing.T, f *fixture, body []byte, signature string) (int, envelope) {
		t.Helper()
		return f.do(t, http.MethodPost, "/webhooks/paddle", bytes.NewReader(body),
			subscription.PaddleSignatureHeader, signature)
	}

	t.Run("checkout upgrades the team", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		teamID := uuid.New()
		body := []byte(fmt.Sprintf(`{
			"event_id": "evt_1",
			"event_type": "transaction.completed",
			"occurred_at": "2025-03-10T09:00:00Z",
			"data": {
				"id": "txn_1",
				"subscription_id": "sub_1",
				"custom_data": {"team_id": %q, "plan_id": "pro"},
				"billing_period": {"starts_at": "2025-03-10T00:00:00Z", "ends_at": "2025-04-10T00:00:00Z"}
			}
		}`, teamID))

		code, env := post(t, f, body, sign(body))
		require.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `{"result":"applied"}`, string(env.Data))

		code, env = f.do(t, http.MethodGet, "/teams/"+teamID.String()+"/usage", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "pro", decode[api.TeamUsage](t, env.Data).PlanID)

		// Replaying an older event is acknowledged without effect
		stale := []byte(`{"event_id":"evt_0","event_type":"subscription.canceled","occurred_at":"2025-03-01T09:00:00Z","data":{"id":"sub_1","status":"canceled"}}`)
		code, env = post(t, f, stale, sign(stale))
		require.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `{"result":"ignored"}`, string(env.Data))
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		body := []byte(`{"event_id":"evt_2","event_type":"subscription.canceled","data":{"id":"sub_1"}}`)
		code, env := post(t, f, body, "ts=1;h1=deadbeef")
		assert.Equal(t, http.StatusUnauthorized, code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "unauthorized", env.Error.Code)
	})

	t.Run("unsupported event", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		body := []byte(`{"event_id":"evt_3","event_type":"customer.created","data":{"id":"ctm_1"}}`)
		code, env := post(t, f, body, sign(body))
		assert.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `{"result":"ignored"}`, string(env.Data))
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		body := []byte(`{not json`)
		code, _ := post(t, f, body, sign(body))
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimiter.Result, error) {
	return ratelimiter.Result{}, ratelimiter.ErrStoreUnavailable
}

func TestRateLimiting(t *testing.T) {
	t.Parallel()

	t.Run("writes are throttled per team", func(t *testing.T) {
		t.Parallel()

		bucket, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
			Capacity: 2, RefillRate: 1, RefillInterval: time.Hour,
		})
		require.NoError(t, err)
		f := newFixture(t, func(d *api.Deps) { d.RateLimiter = bucket })

		teamID := uuid.New()
		reserve := fmt.Sprintf("/teams/%s/resources/notes/reserve", teamID)
		for range 2 {
			code, _ := f.do(t, http.MethodPost, reserve, nil)
			require.Equal(t, http.StatusOK, code)
		}
		code, env := f.do(t, http.MethodPost, reserve, nil)
		assert.Equal(t, http.StatusTooManyRequests, code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "rate_limited", env.Error.Code)

		// Reads are not throttled
		code, _ = f.do(t, http.MethodGet, fmt.Sprintf("/teams/%s/usage", teamID), nil)
		assert.Equal(t, http.StatusOK, code)

		code, _ = f.do(t, http.MethodPost, fmt.Sprintf("/teams/%s/resources/notes/reserve", uuid.New()), nil)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("limiter failures let requests through", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, func(d *api.Deps) { d.RateLimiter = brokenLimiter{} })
		code, _ := f.do(t, http.MethodPost, fmt.Sprintf("/teams/%s/resources/notes/reserve", uuid.New()), nil)
		assert.Equal(t, http.StatusOK, code)
	})
}
