package reliability

import (
	"errors"
	"time"

	"github.com/ent0n29/mockinterview/internal/apperr"
)

// IsRetryable checks the whole chain, so a GenerationFailed caused by an
// unreachable backend is retryable while one caused by a rejection is not.
func IsRetryable(err error) bool {
	return err != nil && errors.Is(err, apperr.UpstreamUnavailable)
}

// IsIdempotentOperation lists the operations that are safe to repeat blindly.
// start and answer create state on every success and need deduplication first.
func IsIdempotentOperation(op string) bool {
	switch op {
	case "end", "report", "transcript":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
