package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsComparesCode(t *testing.T) {
	sentinel := New(CodeAccountMissing, "account not found")
	wrapped := fmt.Errorf("sign message: %w", New(CodeAccountMissing, "different text"))

	if !stdErrors.Is(wrapped, sentinel) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if stdErrors.Is(wrapped, New(CodeChainMissing, "")) {
		t.Fatalf("expected different codes not to match")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("dial tcp: refused")
	err := Wrap(CodeStorageFailure, cause, "open journal")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	if got := err.Error(); got != "[STORAGE_FAILURE] open journal: dial tcp: refused" {
		t.Fatalf("unexpected message %q", got)
	}
	if !RetryableError(err) {
		t.Fatalf("storage failures should be retryable by default")
	}
}

func TestHTTPStatusOf(t *testing.T) {
	if got := HTTPStatusOf(New(CodeChainMissing, ""), http.StatusBadGateway); got != http.StatusConflict {
		t.Fatalf("chain missing: got %d", got)
	}
	if got := HTTPStatusOf(stdErrors.New("plain"), http.StatusBadGateway); got != http.StatusBadGateway {
		t.Fatalf("plain error: got %d", got)
	}
}

func TestRegisterCustomCode(t *testing.T) {
	code := Code("TEST_CUSTOM")
	Register(code, Attributes{Message: "custom", Severity: SeverityInfo, HTTPStatus: http.StatusTeapot})

	err := New(code, "")
	if err.Message() != "custom" {
		t.Fatalf("expected default message, got %q", err.Message())
	}
	if CodeOf(err) != code {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	if AttributesOf(Code("NEVER_REGISTERED")).Message != "unknown error" {
		t.Fatalf("expected unknown fallback")
	}
}
