package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeNotFound, "task abc not found")
	if !errors.Is(err, New(CodeNotFound, "other message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(err, New(CodeUnauthorized, "task abc not found")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeUnknown, "append message", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be traversable")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(nil); got != "" {
		t.Fatalf("expected empty code for nil error, got %q", got)
	}
	if got := GetCode(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("expected unknown code for plain error, got %q", got)
	}
	wrapped := fmt.Errorf("handler: %w", New(CodeInvalidTransition, "bad move"))
	if got := GetCode(wrapped); got != CodeInvalidTransition {
		t.Fatalf("expected code through wrapping, got %q", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeInvalidTransition, http.StatusConflict},
		{CodeUnauthorized, http.StatusForbidden},
		{CodeDecodeError, http.StatusBadRequest},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("code %q: expected status %d, got %d", tc.code, tc.want, got)
		}
	}
}
