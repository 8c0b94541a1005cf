package httpapi

import (
	"context"
	"testing"
)

func TestUserIDFromContext_MissingReturnsEmpty(t *testing.T) {
	t.Parallel()

	if got := UserIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty string for an unauthenticated context, got %q", got)
	}
}

func TestUserIDFromContext_RoundTrips(t *testing.T) {
	t.Parallel()

	ctx := withUserID(context.Background(), "user-42")

	if got := UserIDFromContext(ctx); got != "user-42" {
		t.Errorf("expected 'user-42', got %q", got)
	}
}
