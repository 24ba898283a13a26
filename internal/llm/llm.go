// Package llm provides the text-completion clients a review job can be
// configured with: Anthropic, OpenAI, Google Gemini, and a local Ollama
// server. Every provider implements Completer, a single prompt-in,
// text-out call; job stages compose their own prompts and parse their
// own output formats on top of it.
//
// Provider failures are returned as *CompletionError so callers can
// distinguish retryable failures (rate limits, timeouts) from permanent
// ones (bad credentials, exhausted quota). Wrap any Completer in a
// Retrying to get per-call timeouts and exponential backoff.
package llm

import "context"

// defaultMaxTokens caps responses when the request does not say otherwise.
const defaultMaxTokens = 4096

// Request describes a single completion call.
type Request struct {
	// System is the provider-level system prompt. Optional.
	System string

	// Prompt is the user prompt.
	Prompt string

	// MaxTokens caps the response length. Zero uses the provider default.
	MaxTokens int

	// JSON asks the provider for strict JSON output where it has a switch
	// for that (OpenAI JSON mode, Gemini response MIME type, Ollama
	// format). Providers without one rely on the prompt asking for JSON.
	JSON bool
}

// Completer is implemented by every provider client.
//
// Implementations are safe for concurrent use and respect context
// cancellation.
type Completer interface {
	// Complete sends one prompt and returns the raw model text.
	Complete(ctx context.Context, req Request) (string, error)

	// Name identifies the provider in logs, metrics, and reports.
	Name() string
}
