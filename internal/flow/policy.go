package flow

import (
	"math/rand"
	"time"
)

// NodePolicy configures execution behavior for a single node: timeout and
// retry. Attach with AddWithPolicy; nodes added with Add run under the
// engine defaults.
type NodePolicy struct {
	// Timeout is the maximum execution time for this node. Zero falls
	// back to Options.DefaultNodeTimeout; both zero means unlimited.
	Timeout time.Duration

	// RetryPolicy enables automatic retries of transient failures.
	// nil means a single attempt.
	RetryPolicy *RetryPolicy
}

// RetryPolicy defines bounded retry with exponential backoff for transient
// node failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff:
	// delay = min(BaseDelay * 2^attempt, MaxDelay) + jitter(0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Zero means uncapped.
	MaxDelay time.Duration

	// Retryable classifies errors. nil means nothing is retried.
	Retryable func(error) bool
}

// Validate checks the policy configuration: MaxAttempts >= 1, and when both
// delays are set, MaxDelay >= BaseDelay.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// computeBackoff returns the delay before retry number attempt (zero-based):
// min(base * 2^attempt, maxDelay) plus a random jitter in [0, base) so
// concurrent workers retrying against the same provider do not synchronize.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}

	exponential := base * (1 << attempt)
	if maxDelay > 0 && exponential > maxDelay {
		exponential = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- retry timing, not security
	}

	return exponential + jitter
}
