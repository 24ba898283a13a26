// Package config loads reviewflow's YAML configuration. Every field has a
// working default so a config file is optional; file values overlay the
// defaults and CLI flags overlay both.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v2"
)

// DefaultFile is probed when no --config flag is given.
const DefaultFile = "reviewflow.yaml"

// Provider selects the completion backend. API keys are resolved through
// environment indirection so config files never hold secrets.
type Provider struct {
	Name  string `yaml:"name"`
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the key. Empty
	// falls back to the provider's conventional variable.
	APIKeyEnv string `yaml:"api_key_env"`

	// Endpoint overrides the provider base URL (ollama).
	Endpoint string `yaml:"endpoint"`
}

// Review tunes the analysis stages.
type Review struct {
	// Workers caps the review pool. Zero sizes it from the host.
	Workers int `yaml:"workers"`

	FocusAreas      []string `yaml:"focus_areas"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`

	// MaxFileKB caps the source sent to one reviewer, in KiB.
	MaxFileKB int `yaml:"max_file_kb"`

	// Replans is how many corrected attempts the planner gets after a
	// rejected task list.
	Replans int `yaml:"replans"`
}

// Limits holds every timeout and cap, in seconds and KiB. YAML carries
// integers; use the accessor methods for durations.
type Limits struct {
	NodeSeconds    int `yaml:"node_seconds"`
	LLMSeconds     int `yaml:"llm_seconds"`
	LLMRetries     int `yaml:"llm_retries"`
	TestSeconds    int `yaml:"test_seconds"`
	ProfileSeconds int `yaml:"profile_seconds"`

	// OutputCapKB truncates captured process output per stream.
	OutputCapKB int `yaml:"output_cap_kb"`
}

// NodeTimeout bounds one workflow step.
func (l Limits) NodeTimeout() time.Duration { return seconds(l.NodeSeconds) }

// LLMTimeout bounds one completion call.
func (l Limits) LLMTimeout() time.Duration { return seconds(l.LLMSeconds) }

// TestTimeout bounds one test command.
func (l Limits) TestTimeout() time.Duration { return seconds(l.TestSeconds) }

// ProfileTimeout bounds the measured program run.
func (l Limits) ProfileTimeout() time.Duration { return seconds(l.ProfileSeconds) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Store selects run-state persistence.
type Store struct {
	// Driver is memory, sqlite, or mysql.
	Driver string `yaml:"driver"`

	// DSN is the sqlite path or mysql connection string.
	DSN string `yaml:"dsn"`
}

// Output controls where reports land.
type Output struct {
	// Dir receives the run's reports. Empty means ./reviews/<runID>.
	Dir string `yaml:"dir"`
}

// Config is the full configuration document.
type Config struct {
	Provider Provider `yaml:"provider"`
	Review   Review   `yaml:"review"`
	Limits   Limits   `yaml:"limits"`
	Store    Store    `yaml:"store"`
	Output   Output   `yaml:"output"`
}

// Default returns the configuration used when no file is present: a local
// ollama model, host-sized worker pool, and an in-memory run store.
func Default() Config {
	return Config{
		Provider: Provider{
			Name:  "ollama",
			Model: "qwen2.5-coder:7b",
		},
		Review: Review{
			Replans: 2,
		},
		Limits: Limits{
			NodeSeconds:    600,
			LLMSeconds:     90,
			LLMRetries:     3,
			TestSeconds:    120,
			ProfileSeconds: 60,
			OutputCapKB:    2048,
		},
		Store: Store{
			Driver: "memory",
		},
	}
}

// Load reads path and overlays it on the defaults. Keys absent from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault implements the CLI contract: an explicit path must load; an
// empty path probes DefaultFile and silently falls back to the defaults
// when it does not exist.
func LoadOrDefault(path string) (Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultFile); err != nil {
		return Default(), nil
	}
	return Load(DefaultFile)
}

// Validate rejects configurations the workflow cannot run with.
func (c Config) Validate() error {
	if c.Provider.Name == "" {
		return fmt.Errorf("provider.name is required")
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q (memory, sqlite, mysql)", c.Store.Driver)
	}
	if c.Review.Workers < 0 {
		return fmt.Errorf("review.workers cannot be negative")
	}
	if c.Review.Replans < 0 {
		return fmt.Errorf("review.replans cannot be negative")
	}
	return nil
}

// conventionalKeyEnv maps provider names to the environment variable their
// SDKs document.
var conventionalKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
	"gemini":    "GOOGLE_API_KEY",
}

// APIKey resolves the provider's key: the configured variable first, then
// the provider's conventional one. Ollama needs no key, so empty is not an
// error here; providers that require a key reject it at construction.
func (p Provider) APIKey() string {
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	if env, ok := conventionalKeyEnv[strings.ToLower(p.Name)]; ok {
		return os.Getenv(env)
	}
	return ""
}
