package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("submit: %w", New(CodeConflictingConsumption, "input consumed"))
	if !errors.Is(err, New(CodeConflictingConsumption, "")) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if errors.Is(err, New(CodeContractViolation, "")) {
		t.Fatalf("expected different code not to match")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != "" {
		t.Fatalf("expected empty code for nil, got %q", got)
	}
	if got := CodeOf(errors.New("boom")); got != CodeUnknown {
		t.Fatalf("expected unknown, got %q", got)
	}
	if got := CodeOf(fmt.Errorf("wait: %w", context.DeadlineExceeded)); got != CodeProtocolTimeout {
		t.Fatalf("expected timeout, got %q", got)
	}
	wrapped := Wrap(CodeTransportFailure, "session closed", errors.New("eof"))
	if got := CodeOf(wrapped); got != CodeTransportFailure {
		t.Fatalf("expected transport failure, got %q", got)
	}
	if !Has(wrapped, CodeTransportFailure) {
		t.Fatalf("expected Has to report the code")
	}
}

func TestWithCopiesMetadata(t *testing.T) {
	base := New(CodePolicyRejection, "too high")
	a := base.With("party", "Borrower")
	if base.Metadata != nil {
		t.Fatalf("expected base metadata untouched")
	}
	if a.Metadata["party"] != "Borrower" || a.Error() != "too high" {
		t.Fatalf("unexpected error %+v", a)
	}
}

func TestRetryable(t *testing.T) {
	if !CodeProtocolTimeout.Retryable() || !CodeTransportFailure.Retryable() {
		t.Fatalf("expected timeouts and transport failures to be retryable")
	}
	if CodeConflictingConsumption.Retryable() || CodeContractViolation.Retryable() {
		t.Fatalf("expected conflicts and violations not to be retryable")
	}
}
