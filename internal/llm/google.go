package llm

import (
	"context"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGoogleModel is used when no model is configured.
const DefaultGoogleModel = "gemini-1.5-flash"

// GoogleProvider implements Completer using the Gemini API.
type GoogleProvider struct {
	client *genai.Client
	model  string
}

// NewGoogleProvider creates a Gemini-backed completer. An empty apiKey
// falls back to the GOOGLE_API_KEY environment variable.
func NewGoogleProvider(ctx context.Context, apiKey, model string) (*GoogleProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, &CompletionError{
				Code:    CodeMissingAPIKey,
				Message: "google: API key not provided and GOOGLE_API_KEY not set",
			}
		}
	}
	if model == "" {
		model = DefaultGoogleModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, classifyError("google", err)
	}
	return &GoogleProvider{
		client: client,
		model:  model,
	}, nil
}

// Close releases the underlying client.
func (g *GoogleProvider) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Name returns "google".
func (g *GoogleProvider) Name() string {
	return "google"
}

// Complete generates one response. Request.JSON sets the response MIME
// type to application/json, which forces parseable output.
func (g *GoogleProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := g.client.GenerativeModel(g.model)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", classifyError("google", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &CompletionError{
			Code:    CodeEmptyResponse,
			Message: "google: no candidates in response",
		}
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", &CompletionError{
			Code:    CodeEmptyResponse,
			Message: "google: candidate has no content",
		}
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", &CompletionError{
			Code:    CodeEmptyResponse,
			Message: "google: response contained no text",
		}
	}
	return sb.String(), nil
}
