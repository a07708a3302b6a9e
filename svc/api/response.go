package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kanbanhq/demandkit/pkg/logger"
)

// Envelope is the body of every response.
type Envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Data: data})
}

// respondError logs server errors and renders the mapped HTTP error.
func respondError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	httpErr := toHTTPError(err)
	if httpErr.Code >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeJSON(w, httpErr.Code, Envelope{Error: &ErrorDetail{
		Code:    httpErr.Key,
		Message: http.StatusText(httpErr.Code),
	}})
}
