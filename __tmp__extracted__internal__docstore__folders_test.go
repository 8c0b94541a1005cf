package docstore_test

import (
	"context"
	"testing"

	"github.com/collabhub/server/internal/apperr"
)

func TestCreateFolder_RejectsEmptyTitle(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	_, err := store.CreateFolder(context.Background(), "owner1", "")
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected Validation for an empty title, got %v", err)
	}
}


