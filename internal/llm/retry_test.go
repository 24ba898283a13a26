package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = &CompletionError{
	Code:      CodeRateLimited,
	Message:   "rate limited",
	Retryable: true,
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		CallTimeout: time.Second,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetrying_SucceedsAfterTransientFailures(t *testing.T) {
	mock := NewMockProvider(`{"ok":true}`).FailFirst(2, errTransient)

	var retries []int
	cfg := fastRetryConfig()
	cfg.OnRetry = func(attempt int, err error) {
		retries = append(retries, attempt)
		if !IsRetryable(err) {
			t.Errorf("OnRetry got non-retryable error %v", err)
		}
	}

	r := NewRetrying(mock, cfg)
	got, err := r.Complete(context.Background(), Request{Prompt: "plan"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("got %q", got)
	}
	if mock.CallCount() != 3 {
		t.Errorf("calls = %d, want 3", mock.CallCount())
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("retry attempts = %v, want [1 2]", retries)
	}
}

func TestRetrying_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := &CompletionError{Code: CodeInvalidAPIKey, Message: "bad key"}
	mock := NewMockProvider("unused").FailFirst(5, permanent)

	r := NewRetrying(mock, fastRetryConfig())
	_, err := r.Complete(context.Background(), Request{Prompt: "x"})

	var ce *CompletionError
	if !errors.As(err, &ce) || ce.Code != CodeInvalidAPIKey {
		t.Fatalf("want invalid_api_key error, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("calls = %d, want 1 (no retries on permanent failure)", mock.CallCount())
	}
}

func TestRetrying_ExhaustsAttempts(t *testing.T) {
	mock := NewMockProvider("unused").FailFirst(10, errTransient)

	r := NewRetrying(mock, fastRetryConfig())
	_, err := r.Complete(context.Background(), Request{Prompt: "x"})

	if !IsRetryable(err) {
		t.Fatalf("want last transient error, got %v", err)
	}
	if mock.CallCount() != 3 {
		t.Errorf("calls = %d, want 3", mock.CallCount())
	}
}

// slowCompleter never answers before its context expires.
type slowCompleter struct {
	calls int
}

func (s *slowCompleter) Name() string { return "slow" }

func (s *slowCompleter) Complete(ctx context.Context, req Request) (string, error) {
	s.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRetrying_CallTimeoutIsRetryable(t *testing.T) {
	slow := &slowCompleter{}
	cfg := fastRetryConfig()
	cfg.CallTimeout = 10 * time.Millisecond

	r := NewRetrying(slow, cfg)
	_, err := r.Complete(context.Background(), Request{Prompt: "x"})

	var ce *CompletionError
	if !errors.As(err, &ce) || ce.Code != CodeTimeout {
		t.Fatalf("want timeout error, got %v", err)
	}
	if slow.calls != 3 {
		t.Errorf("calls = %d, want 3 (per-call timeout retries)", slow.calls)
	}
}

func TestRetrying_ParentCancelStops(t *testing.T) {
	slow := &slowCompleter{}
	r := NewRetrying(slow, fastRetryConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Complete(ctx, Request{Prompt: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if slow.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after parent cancel)", slow.calls)
	}
}

func TestRetrying_Backoff(t *testing.T) {
	r := NewRetrying(NewMockProvider("x"), RetryConfig{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
	})

	for attempt, wantBase := range []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	} {
		d := r.backoff(attempt)
		if d < wantBase || d >= wantBase+100*time.Millisecond {
			t.Errorf("backoff(%d) = %v, want [%v, %v)", attempt, d, wantBase, wantBase+100*time.Millisecond)
		}
	}

	// Doubling past the cap clamps to MaxDelay before jitter.
	if d := r.backoff(10); d >= time.Second+100*time.Millisecond {
		t.Errorf("backoff(10) = %v, want capped near MaxDelay", d)
	}
}
