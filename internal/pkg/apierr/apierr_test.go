package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_WrappedError(t *testing.T) {
	base := Conflict("version %s already exists", "1.0.0")
	wrapped := fmt.Errorf("creating release: %w", base)

	if KindOf(wrapped) != KindConflict {
		t.Fatalf("KindOf(wrapped) = %s, want %s", KindOf(wrapped), KindConflict)
	}
	if !IsKind(wrapped, KindConflict) {
		t.Fatalf("IsKind(wrapped, conflict) = false")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain error should have no kind")
	}
}

func TestWithDetailsAndCause(t *testing.T) {
	cause := errors.New("row locked")
	err := Precondition("2 requirements missing").
		WithDetails("a", "b").
		WithCause(cause)

	if len(err.Details) != 2 {
		t.Fatalf("details = %v, want 2 entries", err.Details)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Conflict("dup"), http.StatusConflict},
		{State("wrong status"), http.StatusConflict},
		{Forbidden("no"), http.StatusForbidden},
		{Precondition("missing"), http.StatusUnprocessableEntity},
		{NotFound("gone"), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
