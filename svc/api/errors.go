package api

import (
	"errors"
	"net/http"

	"github.com/kanbanhq/demandkit/pkg/limits"
	"github.com/kanbanhq/demandkit/svc/timetrack"
	"github.com/kanbanhq/demandkit/svc/usage"
)

// HTTPError is an error with a status code and a stable machine key.
type HTTPError struct {
	Code int
	Key  string
}

func (e HTTPError) Error() string {
	return e.Key
}

var (
	ErrBadRequest    = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrUnauthorized  = HTTPError{Code: http.StatusUnauthorized, Key: "unauthorized"}
	ErrLimitExceeded = HTTPError{Code: http.StatusPaymentRequired, Key: "limit_exceeded"}
	ErrNotFound      = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict      = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrInternal      = HTTPError{Code: http.StatusInternalServerError, Key: "internal_error"}

	ErrTooManyRequests = HTTPError{Code: http.StatusTooManyRequests, Key: "rate_limited"}
)

// toHTTPError maps domain errors onto HTTP errors. Unknown errors become
// ErrInternal so their text never reaches the client.
func toHTTPError(err error) HTTPError {
	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, limits.ErrLimitExceeded), errors.Is(err, usage.ErrQuotaExhausted):
		return ErrLimitExceeded
	case errors.Is(err, limits.ErrInvalidResource), errors.Is(err, usage.ErrUnknownResource):
		return HTTPError{Code: http.StatusNotFound, Key: "unknown_resource"}
	case errors.Is(err, timetrack.ErrEntryNotFound):
		return ErrNotFound
	case errors.Is(err, timetrack.ErrAlreadyRunning):
		return ErrConflict
	case errors.Is(err, timetrack.ErrMissingDemandID), errors.Is(err, timetrack.ErrMissingUserID):
		return ErrBadRequest
	default:
		return ErrInternal
	}
}
