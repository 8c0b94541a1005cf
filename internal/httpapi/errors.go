package httpapi

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/collabhub/server/internal/apperr"
)

// errorResponse is the JSON body written for any non-2xx response,
// carrying the stable Kind taxonomy rather than a raw error string.
type errorResponse struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds; present when the error carries a retry hint
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)

	status := http.StatusInternalServerError
	message := "internal error"

	switch kind {
	case apperr.Unauthenticated:
		status = http.StatusUnauthorized
	case apperr.Forbidden:
		status = http.StatusForbidden
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.RateLimited:
		status = http.StatusTooManyRequests
	case apperr.SandboxUnavailable:
		status = http.StatusServiceUnavailable
	case apperr.ExecutionTimeout:
		status = http.StatusGatewayTimeout
	case apperr.OutputLimit:
		status = http.StatusUnprocessableEntity
	case apperr.Transient:
		status = http.StatusServiceUnavailable
	case apperr.InconsistentState:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	var retryAfterSeconds int

	if e, ok := err.(*apperr.Error); ok {
		message = e.Message

		if e.RetryAfter > 0 {
			retryAfterSeconds = int(math.Ceil(e.RetryAfter.Seconds()))
			if retryAfterSeconds < 1 {
				retryAfterSeconds = 1
			}
		}
	}

	body := errorResponse{Kind: string(kind), Message: message}

	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		body.RetryAfter = retryAfterSeconds
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
