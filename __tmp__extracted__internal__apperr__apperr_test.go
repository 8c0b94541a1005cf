package apperr_test

import (
	"errors"
	"testing"

	"github.com/collabhub/server/internal/apperr"
)

func TestWrap_NilCausePassesThrough(t *testing.T) {
	t.Parallel()

	if err := apperr.Wrap(apperr.Transient, "whatever", nil); err != nil {
		t.Errorf("expected Wrap(nil) to return nil, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"nil", nil, ""},
		{"plain error defaults to internal", errors.New("boom"), apperr.Internal},
		{"tagged error", apperr.New(apperr.NotFound, "missing"), apperr.NotFound},
		{"wrapped tagged error", apperr.Wrap(apperr.Conflict, "races", errors.New("underlying")), apperr.Conflict},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := apperr.KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	t.Parallel()

	err := apperr.New(apperr.RateLimited, "slow down")

	if !apperr.Is(err, apperr.RateLimited) {
		t.Error("expected Is to match RateLimited")
	}

	if apperr.Is(err, apperr.Forbidden) {
		t.Error("expected Is not to match Forbidden")
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := apperr.Wrap(apperr.Transient, "dial database", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to see through to the cause")
	}

	var typed *apperr.Error
	if !errors.As(err, &typed) {
		t.Fatal("expected errors.As to extract *apperr.Error")
	}

	if typed.Message != "dial database" {
		t.Errorf("expected message 'dial database', got %q", typed.Message)
	}
}


