package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// UsageStats is a snapshot of provider traffic for one run. Providers in
// this package return plain text, so token counts are estimated from byte
// volume (~4 bytes per token holds across the supported model families).
type UsageStats struct {
	Provider      string
	Calls         int
	Failures      int
	PromptBytes   int64
	ResponseBytes int64

	// WallTime is total time spent inside provider calls, retries
	// included. Concurrent workers overlap, so this can exceed the run's
	// elapsed time.
	WallTime time.Duration
}

const bytesPerToken = 4

// EstimatedPromptTokens approximates tokens sent.
func (s UsageStats) EstimatedPromptTokens() int64 { return s.PromptBytes / bytesPerToken }

// EstimatedResponseTokens approximates tokens received.
func (s UsageStats) EstimatedResponseTokens() int64 { return s.ResponseBytes / bytesPerToken }

// String renders a one-line summary for the end-of-run report.
func (s UsageStats) String() string {
	line := fmt.Sprintf("%s: %d call(s)", s.Provider, s.Calls)
	if s.Failures > 0 {
		line += fmt.Sprintf(" (%d failed)", s.Failures)
	}
	line += fmt.Sprintf(", ~%s prompt tokens, ~%s response tokens, %s in provider calls",
		humanCount(s.EstimatedPromptTokens()),
		humanCount(s.EstimatedResponseTokens()),
		s.WallTime.Round(100*time.Millisecond))
	return line
}

func humanCount(n int64) string {
	if n < 10_000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%.1fk", float64(n)/1000)
}

// UsageTracker wraps a Completer and accounts every call. Wrap outside the
// retry layer so one logical completion counts once regardless of attempts.
// Safe for concurrent workers.
type UsageTracker struct {
	inner Completer

	mu    sync.Mutex
	stats UsageStats
}

var _ Completer = (*UsageTracker)(nil)

// NewUsageTracker wraps inner.
func NewUsageTracker(inner Completer) *UsageTracker {
	return &UsageTracker{inner: inner, stats: UsageStats{Provider: inner.Name()}}
}

// Name returns the wrapped provider's name.
func (u *UsageTracker) Name() string { return u.inner.Name() }

// Complete delegates to the wrapped completer and records the traffic.
func (u *UsageTracker) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := u.inner.Complete(ctx, req)
	elapsed := time.Since(start)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.stats.Calls++
	u.stats.PromptBytes += int64(len(req.System) + len(req.Prompt))
	u.stats.WallTime += elapsed
	if err != nil {
		u.stats.Failures++
		return text, err
	}
	u.stats.ResponseBytes += int64(len(text))
	return text, nil
}

// Stats returns a copy of the counters so far.
func (u *UsageTracker) Stats() UsageStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}
