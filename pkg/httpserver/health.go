package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kanbanhq/demandkit/pkg/logger"
)

// Check is a named dependency probe such as pg.Healthcheck.
type Check struct {
	Name  string
	Probe func(context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler reports "ok" when every probe passes and 503 "unavailable"
// otherwise. Without checks it acts as a liveness probe. Each probe gets
// timeout to answer.
func HealthHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK

		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := c.Probe(ctx)
			cancel()

			if err != nil {
				log.ErrorContext(r.Context(), "health check failed", slog.String("check", c.Name), logger.Error(err))
				report.Checks[c.Name] = "unavailable"
				report.Status = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			report.Checks[c.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}
