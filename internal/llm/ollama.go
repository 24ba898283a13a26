package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Ollama defaults. The server needs no API key.
const (
	DefaultOllamaModel = "llama3"
	DefaultOllamaURL   = "http://localhost:11434"
)

// Model names end up in a JSON request body; restrict them to the
// characters ollama itself accepts.
var safeModelName = regexp.MustCompile(`^[a-zA-Z0-9:._-]+$`)

// OllamaProvider implements Completer against a local Ollama server's
// generate API.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaProvider creates a completer for the Ollama server at baseURL.
// Empty arguments use DefaultOllamaURL and DefaultOllamaModel.
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  http.DefaultClient,
	}
}

// Name returns "ollama".
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (string, error) {
	if !safeModelName.MatchString(p.model) {
		return "", &CompletionError{
			Code:    CodeAPIError,
			Message: fmt.Sprintf("ollama: invalid model name %q", p.model),
		}
	}

	format := ""
	if req.JSON {
		format = "json"
	}

	body, err := json.Marshal(ollamaRequest{
		Model:  p.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Format: format,
	})
	if err != nil {
		return "", &CompletionError{
			Code:    CodeAPIError,
			Message: fmt.Sprintf("ollama: encode request: %v", err),
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", classifyError("ollama", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyError("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyError("ollama", fmt.Errorf("server returned status %d", resp.StatusCode))
	}

	var oResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return "", &CompletionError{
			Code:    CodeAPIError,
			Message: fmt.Sprintf("ollama: decode response: %v", err),
		}
	}
	return strings.TrimSpace(oResp.Response), nil
}
