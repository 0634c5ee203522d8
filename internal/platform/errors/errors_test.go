package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodeOfWrapped(t *testing.T) {
	base := NotFound("quote_request", "qr-1")
	wrapped := fmt.Errorf("loading: %w", base)

	if got := CodeOf(wrapped); got != ErrCodeNotFound {
		t.Fatalf("expected %s, got %s", ErrCodeNotFound, got)
	}
	if !Is(wrapped, ErrCodeNotFound) {
		t.Fatalf("expected Is to match NOT_FOUND")
	}
	if Is(nil, ErrCodeNotFound) {
		t.Fatalf("nil error must not match any code")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(stderrors.New("boom")); got != ErrCodeInternal {
		t.Fatalf("expected INTERNAL for foreign errors, got %s", got)
	}
}

func TestDetails(t *testing.T) {
	err := PreconditionFailed("job_has_specification", "job has no specification").
		WithDetail("job_id", "job-1")

	if err.Details["condition"] != "job_has_specification" {
		t.Fatalf("unexpected condition detail: %v", err.Details["condition"])
	}
	if err.Details["job_id"] != "job-1" {
		t.Fatalf("unexpected job_id detail: %v", err.Details["job_id"])
	}
}

func TestWrapMessage(t *testing.T) {
	err := Wrap(stderrors.New("connection reset"), ErrCodeInternal, "failed to create quote request")
	if err.Error() != "failed to create quote request: connection reset" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if stderrors.Unwrap(err) == nil {
		t.Fatalf("expected wrapped cause")
	}
}
