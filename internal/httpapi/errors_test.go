package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/collabhub/server/internal/apperr"
)

func TestWriteError_MapsKindToStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.Unauthenticated, http.StatusUnauthorized},
		{apperr.Forbidden, http.StatusForbidden},
		{apperr.NotFound, http.StatusNotFound},
		{apperr.Validation, http.StatusBadRequest},
		{apperr.Conflict, http.StatusConflict},
		{apperr.RateLimited, http.StatusTooManyRequests},
		{apperr.SandboxUnavailable, http.StatusServiceUnavailable},
		{apperr.ExecutionTimeout, http.StatusGatewayTimeout},
		{apperr.OutputLimit, http.StatusUnprocessableEntity},
		{apperr.Transient, http.StatusServiceUnavailable},
		{apperr.InconsistentState, http.StatusConflict},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, apperr.New(tc.kind, "boom"))

		if rec.Code != tc.want {
			t.Errorf("kind %s: expected status %d, got %d", tc.kind, tc.want, rec.Code)
		}

		var body errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}

		if body.Message != "boom" {
			t.Errorf("expected message 'boom', got %q", body.Message)
		}
	}
}

func TestWriteError_SurfacesRetryAfterHeaderAndBody(t *testing.T) {
	t.Parallel()

	rlErr := apperr.New(apperr.RateLimited, "execution rate limit exceeded")
	rlErr.RetryAfter = 30 * time.Second

	rec := httptest.NewRecorder()
	writeError(rec, rlErr)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("expected Retry-After header '30', got %q", got)
	}

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.RetryAfter != 30 {
		t.Errorf("expected body retryAfter 30, got %d", body.RetryAfter)
	}
}

func TestWriteError_OmitsRetryAfterWhenNotSet(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, apperr.New(apperr.Validation, "bad input"))

	if got := rec.Header().Get("Retry-After"); got != "" {
		t.Errorf("expected no Retry-After header, got %q", got)
	}

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.RetryAfter != 0 {
		t.Errorf("expected retryAfter to be omitted (zero value), got %d", body.RetryAfter)
	}
}

func TestWriteError_UntaggedErrorIsInternal(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeError(rec, errors.New("unexpected"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for an untagged error, got %d", rec.Code)
	}

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.Message != "internal error" {
		t.Errorf("expected the generic internal-error message for an untagged error, got %q", body.Message)
	}
}
