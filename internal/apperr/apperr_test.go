package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindMatchesThroughWrapping(t *testing.T) {
	upstream := Wrap(UpstreamUnavailable, "completion backend unreachable", context.DeadlineExceeded)
	err := Wrap(GenerationFailed, "could not generate the next question", upstream)

	if !errors.Is(err, GenerationFailed) {
		t.Fatalf("errors.Is(err, GenerationFailed) = false")
	}
	if !errors.Is(err, UpstreamUnavailable) {
		t.Fatalf("errors.Is(err, UpstreamUnavailable) = false")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("cause lost in chain")
	}
	if got := KindOf(err); got != GenerationFailed {
		t.Fatalf("KindOf() = %q, want %q", got, GenerationFailed)
	}
}

func TestErrorHidesCause(t *testing.T) {
	err := Wrap(UpstreamRejected, "completion backend rejected the request", errors.New("status 401: invalid api key sk-123"))
	if got := err.Error(); got != "completion backend rejected the request" {
		t.Fatalf("Error() = %q", got)
	}
	if got := Message(fmt.Errorf("handler: %w", err)); got != "completion backend rejected the request" {
		t.Fatalf("Message() = %q", got)
	}
}

func TestKindOfUntyped(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != Internal {
		t.Fatalf("KindOf(untyped) = %q, want %q", got, Internal)
	}
	if got := KindOf(NotFound); got != NotFound {
		t.Fatalf("KindOf(bare kind) = %q, want %q", got, NotFound)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("KindOf(nil) = %q, want empty", got)
	}
}
