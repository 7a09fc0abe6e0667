package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAsUnwrapsThroughFmtErrorf(t *testing.T) {
	base := Validation("bad input")
	wrapped := fmt.Errorf("context: %w", base)

	got, ok := As(wrapped)
	if !ok {
		t.Fatal("As() should find the wrapped *Error")
	}
	if got.Code != CodeValidation {
		t.Errorf("Code = %q, want %q", got.Code, CodeValidation)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ConnectionFailed(errors.New("refused"), "prod")) {
		t.Error("ConnectionFailed should be retryable")
	}
	if IsRetryable(Validation("bad input")) {
		t.Error("Validation should not be retryable")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("a non-taxonomy error should never be retryable")
	}
}

func TestErrorMessageIncludesWrappedCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ConnectionFailed(cause, "analytics-db")

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the original cause")
	}
	if err.Error() == err.Message {
		t.Error("Error() should include the wrapped cause's detail")
	}
}

func TestRateLimitedSuggestsRetry(t *testing.T) {
	err := RateLimited("free", 30)
	if err.Status != 429 {
		t.Errorf("Status = %d, want 429", err.Status)
	}
	if len(err.Suggestions) == 0 {
		t.Error("RateLimited should include a suggestion")
	}
}
