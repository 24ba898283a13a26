package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Completion error codes.
const (
	CodeInvalidAPIKey = "invalid_api_key"
	CodeMissingAPIKey = "missing_api_key"
	CodeRateLimited   = "rate_limited"
	CodeQuotaExceeded = "quota_exceeded"
	CodeTimeout       = "timeout"
	CodeAPIError      = "api_error"
	CodeEmptyResponse = "empty_response"
)

// CompletionError classifies a provider failure. Retryable errors (rate
// limits, timeouts, overload) may be re-attempted with backoff; permanent
// ones (credentials, quota) must surface to the operator.
type CompletionError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *CompletionError) Error() string {
	return e.Message
}

// IsRetryable reports whether the call may succeed on a later attempt.
func (e *CompletionError) IsRetryable() bool {
	return e.Retryable
}

// IsRetryable reports whether err is a retryable completion failure.
// Anything that is not a CompletionError is treated as permanent.
func IsRetryable(err error) bool {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// classifyError maps raw SDK and transport errors onto the CompletionError
// taxonomy. The SDKs do not expose typed status errors uniformly, so
// classification falls back to status codes and markers in the error text.
func classifyError(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CompletionError{
			Code:      CodeTimeout,
			Message:   provider + ": request cancelled or timed out",
			Retryable: true,
		}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "401", "403", "authentication", "api_key", "api key"):
		return &CompletionError{
			Code:    CodeInvalidAPIKey,
			Message: provider + ": API key is invalid or expired",
		}
	case containsAny(msg, "429", "rate_limit", "rate limit", "too many requests", "529", "overloaded"):
		return &CompletionError{
			Code:      CodeRateLimited,
			Message:   provider + ": rate limited",
			Retryable: true,
		}
	case containsAny(msg, "quota", "billing"):
		return &CompletionError{
			Code:    CodeQuotaExceeded,
			Message: provider + ": API quota exceeded",
		}
	case containsAny(msg, "timeout", "deadline"):
		return &CompletionError{
			Code:      CodeTimeout,
			Message:   provider + ": request timed out",
			Retryable: true,
		}
	default:
		return &CompletionError{
			Code:    CodeAPIError,
			Message: fmt.Sprintf("%s: %v", provider, err),
		}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
