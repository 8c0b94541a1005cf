package docstore_test

import (
	"testing"

	"github.com/collabhub/server/internal/docstore"
)

func TestCanRead(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role docstore.Role
		want bool
	}{
		{docstore.RoleOwner, true},
		{docstore.RoleEditor, true},
		{docstore.RoleViewer, true},
		{docstore.RoleNone, false},
	}

	for _, tc := range cases {
		if got := docstore.CanRead(tc.role); got != tc.want {
			t.Errorf("CanRead(%s) = %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestCanEdit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role docstore.Role
		want bool
	}{
		{docstore.RoleOwner, true},
		{docstore.RoleEditor, true},
		{docstore.RoleViewer, false},
		{docstore.RoleNone, false},
	}

	for _, tc := range cases {
		if got := docstore.CanEdit(tc.role); got != tc.want {
			t.Errorf("CanEdit(%s) = %v, want %v", tc.role, got, tc.want)
		}
	}
}


