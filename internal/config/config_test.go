package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Provider.Name != "ollama" {
		t.Errorf("default provider = %q, want ollama", cfg.Provider.Name)
	}
	if cfg.Provider.Model == "" {
		t.Error("default model is empty")
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("default store driver = %q, want memory", cfg.Store.Driver)
	}
	if got := cfg.Limits.LLMTimeout(); got != 90*time.Second {
		t.Errorf("default llm timeout = %v, want 90s", got)
	}
	if got := cfg.Limits.NodeTimeout(); got != 10*time.Minute {
		t.Errorf("default node timeout = %v, want 10m", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewflow.yaml")
	doc := `
provider:
  name: anthropic
  model: claude-sonnet-4-5
review:
  workers: 4
  focus_areas: [error handling, concurrency]
limits:
  test_seconds: 30
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Provider.Name != "anthropic" {
		t.Errorf("provider = %q, want anthropic", cfg.Provider.Name)
	}
	if cfg.Review.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Review.Workers)
	}
	if len(cfg.Review.FocusAreas) != 2 {
		t.Errorf("focus areas = %v, want 2 entries", cfg.Review.FocusAreas)
	}
	if got := cfg.Limits.TestTimeout(); got != 30*time.Second {
		t.Errorf("test timeout = %v, want 30s", got)
	}

	// Keys absent from the file keep their defaults.
	if cfg.Limits.LLMRetries != 3 {
		t.Errorf("llm retries = %d, want default 3", cfg.Limits.LLMRetries)
	}
	if cfg.Review.Replans != 2 {
		t.Errorf("replans = %d, want default 2", cfg.Review.Replans)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("store driver = %q, want default memory", cfg.Store.Driver)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("want error for missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("provider: [unclosed"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("want error for malformed yaml")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		if err := os.WriteFile(path, []byte("store:\n  driver: sqlite\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "store.dsn") {
			t.Errorf("want store.dsn error, got %v", err)
		}
	})
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("no file falls back to defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := LoadOrDefault("")
		if err != nil {
			t.Fatalf("LoadOrDefault() error: %v", err)
		}
		if cfg.Provider.Name != "ollama" {
			t.Errorf("provider = %q, want default ollama", cfg.Provider.Name)
		}
	})

	t.Run("probes default file", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		doc := "provider:\n  name: openai\n  model: gpt-4o\n"
		if err := os.WriteFile(filepath.Join(dir, DefaultFile), []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadOrDefault("")
		if err != nil {
			t.Fatalf("LoadOrDefault() error: %v", err)
		}
		if cfg.Provider.Name != "openai" {
			t.Errorf("provider = %q, want openai from default file", cfg.Provider.Name)
		}
	})

	t.Run("explicit path must exist", func(t *testing.T) {
		if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("want error for explicit missing path")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := Default()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default ok", func(c *Config) {}, ""},
		{"sqlite with dsn", func(c *Config) { c.Store = Store{Driver: "sqlite", DSN: "runs.db"} }, ""},
		{"mysql without dsn", func(c *Config) { c.Store = Store{Driver: "mysql"} }, "store.dsn"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"missing provider", func(c *Config) { c.Provider.Name = "" }, "provider.name"},
		{"negative workers", func(c *Config) { c.Review.Workers = -1 }, "workers"},
		{"negative replans", func(c *Config) { c.Review.Replans = -2 }, "replans"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("want error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestProviderAPIKey(t *testing.T) {
	t.Run("explicit env indirection", func(t *testing.T) {
		t.Setenv("REVIEWFLOW_TEST_KEY", "sk-explicit")
		p := Provider{Name: "anthropic", APIKeyEnv: "REVIEWFLOW_TEST_KEY"}
		if got := p.APIKey(); got != "sk-explicit" {
			t.Errorf("APIKey() = %q, want sk-explicit", got)
		}
	})

	t.Run("conventional fallback", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-conventional")
		p := Provider{Name: "OpenAI"}
		if got := p.APIKey(); got != "sk-conventional" {
			t.Errorf("APIKey() = %q, want sk-conventional", got)
		}
	})

	t.Run("keyless provider", func(t *testing.T) {
		p := Provider{Name: "ollama"}
		if got := p.APIKey(); got != "" {
			t.Errorf("APIKey() = %q, want empty", got)
		}
	})
}
