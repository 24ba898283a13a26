package llm

import (
	"context"
	"fmt"
	"strings"
)

// ProviderSpec names a provider and its credentials. APIKey must already
// be resolved; configuration-level indirection (env var names) is the
// config package's job.
type ProviderSpec struct {
	Name     string
	Model    string
	APIKey   string
	Endpoint string // ollama only; empty uses DefaultOllamaURL
}

// NewProvider builds a Completer from a spec. Gemini accepts "google" or
// "gemini" as the provider name.
func NewProvider(ctx context.Context, spec ProviderSpec) (Completer, error) {
	switch strings.ToLower(spec.Name) {
	case "anthropic":
		return NewAnthropicProvider(spec.APIKey, spec.Model)
	case "openai":
		return NewOpenAIProvider(spec.APIKey, spec.Model)
	case "google", "gemini":
		return NewGoogleProvider(ctx, spec.APIKey, spec.Model)
	case "ollama":
		return NewOllamaProvider(spec.Endpoint, spec.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", spec.Name)
	}
}
