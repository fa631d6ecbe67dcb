package reliability

import (
	"testing"
	"time"

	"github.com/ent0n29/mockinterview/internal/apperr"
)

func TestIsRetryableChain(t *testing.T) {
	unavailable := apperr.Wrap(apperr.GenerationFailed, "x", apperr.New(apperr.UpstreamUnavailable, "timeout"))
	rejected := apperr.Wrap(apperr.GenerationFailed, "x", apperr.New(apperr.UpstreamRejected, "401"))
	if !IsRetryable(unavailable) {
		t.Fatalf("IsRetryable(unavailable) = false")
	}
	if IsRetryable(rejected) {
		t.Fatalf("IsRetryable(rejected) = true")
	}
	if IsRetryable(nil) {
		t.Fatalf("IsRetryable(nil) = true")
	}
}

func TestIsIdempotentOperation(t *testing.T) {
	for _, op := range []string{"end", "report", "transcript"} {
		if !IsIdempotentOperation(op) {
			t.Fatalf("%s should be idempotent", op)
		}
	}
	for _, op := range []string{"start", "answer"} {
		if IsIdempotentOperation(op) {
			t.Fatalf("%s must not be retried blindly", op)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, capDur); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want %v", got, 400*time.Millisecond)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}
