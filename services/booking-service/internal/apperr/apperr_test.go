package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusAndMessage(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{NotFound("service %s not found", "s1"), http.StatusNotFound, "service s1 not found"},
		{Validation("date is required"), http.StatusBadRequest, "date is required"},
		{ErrSlotUnavailable, http.StatusConflict, "slot unavailable"},
		{fmt.Errorf("wrapped: %w", ErrSlotUnavailable), http.StatusConflict, "slot unavailable"},
		{errors.New("pg exploded"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.status {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.status)
		}
		if got := PublicMessage(tc.err); got != tc.msg {
			t.Fatalf("PublicMessage(%v) = %q, want %q", tc.err, got, tc.msg)
		}
	}
}

func TestIs(t *testing.T) {
	err := Conflict("slot unavailable")
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatal("expected conflict to match ErrSlotUnavailable")
	}
	if errors.Is(Validation("slot unavailable"), ErrSlotUnavailable) {
		t.Fatal("different kinds must not match")
	}
	dep := Dependency("send confirmation", errors.New("smtp down"))
	if KindOf(dep) != KindDependency || dep.Error() != "send confirmation: smtp down" {
		t.Fatalf("unexpected dependency error: %v", dep)
	}
}
