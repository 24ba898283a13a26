package llm

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Retry defaults. Completions are slow and flaky under load; three
// attempts behind a 90 second per-call deadline keeps a stuck provider
// from stalling a whole job.
const (
	DefaultRetryAttempts = 3
	DefaultCallTimeout   = 90 * time.Second
	defaultRetryBase     = 500 * time.Millisecond
	defaultRetryMax      = 8 * time.Second
)

// RetryConfig tunes a Retrying wrapper. Zero values use the defaults.
type RetryConfig struct {
	MaxAttempts int
	CallTimeout time.Duration
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnRetry is invoked before each re-attempt with the 1-based count of
	// failed attempts so far and the error that caused the retry. Callers
	// use it to feed retry metrics.
	OnRetry func(attempt int, err error)
}

// Retrying wraps a Completer with per-call timeouts and exponential
// backoff on retryable failures. Permanent failures return immediately.
type Retrying struct {
	inner Completer
	cfg   RetryConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetrying wraps inner with retry behavior.
func NewRetrying(inner Completer, cfg RetryConfig) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryAttempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultRetryBase
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultRetryMax
	}
	return &Retrying{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- retry timing, not security
	}
}

// Name returns the wrapped provider's name.
func (r *Retrying) Name() string {
	return r.inner.Name()
}

// Complete runs the wrapped call up to MaxAttempts times. A fired per-call
// deadline is the provider being slow and counts as retryable; the parent
// context being done stops everything.
func (r *Retrying) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if r.cfg.OnRetry != nil {
				r.cfg.OnRetry(attempt, lastErr)
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(r.backoff(attempt - 1)):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		text, err := r.inner.Complete(callCtx, req)
		timedOut := callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()

		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if timedOut {
			err = &CompletionError{
				Code:      CodeTimeout,
				Message:   fmt.Sprintf("%s: call exceeded %v", r.inner.Name(), r.cfg.CallTimeout),
				Retryable: true,
			}
		}
		if !IsRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// backoff doubles the base delay per attempt, caps it, and adds jitter so
// concurrent workers do not retry in lockstep.
func (r *Retrying) backoff(attempt int) time.Duration {
	delay := r.cfg.BaseDelay << uint(attempt)
	if delay <= 0 || delay > r.cfg.MaxDelay {
		delay = r.cfg.MaxDelay
	}

	r.mu.Lock()
	jitter := time.Duration(r.rng.Int63n(int64(r.cfg.BaseDelay)))
	r.mu.Unlock()

	return delay + jitter
}
