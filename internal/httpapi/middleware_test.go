package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/authn"
)

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	t.Parallel()

	s := New(Config{Verifier: authn.New(authn.Config{}, zerolog.Nop())})

	called := false
	handler := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a missing bearer token, got %d", rec.Code)
	}

	if called {
		t.Error("expected the wrapped handler not to run for an unauthenticated request")
	}
}

func TestAuthMiddleware_RejectsMalformedAuthHeader(t *testing.T) {
	t.Parallel()

	s := New(Config{Verifier: authn.New(authn.Config{}, zerolog.Nop())})

	handler := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "not-a-bearer-token")
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a header without the Bearer prefix, got %d", rec.Code)
	}
}
