// Package metrics provides Prometheus instrumentation for quota decisions,
// usage reservations, billing webhooks, live timers and the HTTP API.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kanbanhq/demandkit/pkg/limits"
)

const namespace = "demandkit"

var (
	// QuotaDecisionsTotal counts advisory create checks by resource and outcome.
	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Advisory create checks by resource and outcome (allowed, denied, unlimited).",
		},
		[]string{"resource", "outcome"},
	)

	// ReservationsTotal counts authoritative usage reservations by resource and outcome.
	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_reservations_total",
			Help:      "Usage reservations by resource and outcome (reserved, exhausted, error).",
		},
		[]string{"resource", "outcome"},
	)

	// WebhookEventsTotal counts billing webhook events by type and result.
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Billing webhook events by type and result (applied, ignored, rejected).",
		},
		[]string{"event_type", "result"},
	)

	// RunningTimers tracks live timers ticking across open timer streams.
	RunningTimers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "running_timers",
		Help:      "Number of live elapsed-time timers ticking across open timer streams.",
	})

	// HTTPRequestsTotal counts API requests by method, route pattern and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status class.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes API latency by method and route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		QuotaDecisionsTotal,
		ReservationsTotal,
		WebhookEventsTotal,
		RunningTimers,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ObserveDecision records a limits.Check outcome. It matches limits.DecisionObserver.
func ObserveDecision(_ context.Context, _ uuid.UUID, res limits.Resource, d limits.Decision) {
	outcome := "denied"
	switch {
	case d.IsUnlimited:
		outcome = "unlimited"
	case d.CanCreate:
		outcome = "allowed"
	}
	QuotaDecisionsTotal.WithLabelValues(string(res), outcome).Inc()
}

// ObserveReservation records a usage reservation result.
func ObserveReservation(res limits.Resource, outcome string) {
	ReservationsTotal.WithLabelValues(string(res), outcome).Inc()
}

// ObserveWebhook records a billing webhook result.
func ObserveWebhook(eventType, result string) {
	WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// Middleware records request count and latency per chi route pattern.
// Unmatched requests share the "unmatched" route label.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
			HTTPRequestDuration.WithLabelValues(r.Method, route(r)).Observe(v)
		}))

		next.ServeHTTP(ww, r)

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(r.Method, route(r), statusBucket(ww.Status())).Inc()
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// route must be read after the router ran so the pattern is complete.
func route(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusBucket groups HTTP status codes into classes (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
