package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaProvider_Complete(t *testing.T) {
	var captured ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "  {\"tasks\":[]}  ", Done: true})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "codellama:13b")
	got, err := p.Complete(context.Background(), Request{
		System: "you review code",
		Prompt: "plan the review as JSON",
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"tasks":[]}` {
		t.Errorf("got %q, want trimmed JSON", got)
	}

	if captured.Model != "codellama:13b" {
		t.Errorf("model = %q", captured.Model)
	}
	if captured.Stream {
		t.Error("stream should be false")
	}
	if captured.Format != "json" {
		t.Errorf("format = %q, want json", captured.Format)
	}
	if captured.System != "you review code" {
		t.Errorf("system = %q", captured.System)
	}
}

func TestOllamaProvider_StatusErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{"server error", http.StatusInternalServerError, false},
		{"rate limited", http.StatusTooManyRequests, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := NewOllamaProvider(srv.URL, "llama3")
			_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
			if err == nil {
				t.Fatal("want error")
			}
			if IsRetryable(err) != tt.wantRetryable {
				t.Errorf("IsRetryable = %v, want %v (err=%v)", IsRetryable(err), tt.wantRetryable, err)
			}
		})
	}
}

func TestOllamaProvider_RejectsUnsafeModelName(t *testing.T) {
	p := NewOllamaProvider("", "llama3; rm -rf /")
	if _, err := p.Complete(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Error("want error for unsafe model name")
	}
}

func TestOllamaProvider_Defaults(t *testing.T) {
	p := NewOllamaProvider("", "")
	if p.model != DefaultOllamaModel {
		t.Errorf("model = %q, want %q", p.model, DefaultOllamaModel)
	}
	if p.baseURL != DefaultOllamaURL {
		t.Errorf("baseURL = %q, want %q", p.baseURL, DefaultOllamaURL)
	}
}
