package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

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


