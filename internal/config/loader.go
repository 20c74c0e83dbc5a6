package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists the provider names registered by the CLI.
// Used by [Validate] to warn about unrecognised provider names.
var ValidLLMProviders = []string{"ollama", "openai", "anthropic", "gemini", "llamacpp"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected. An empty document yields
// the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider
	llm := cfg.Providers.LLM
	if llm.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	} else if !slices.Contains(ValidLLMProviders, llm.Name) {
		slog.Warn("unknown provider name, may be a typo or third-party provider",
			"kind", "llm",
			"name", llm.Name,
			"known", ValidLLMProviders,
		)
	}
	if llm.Model == "" {
		errs = append(errs, errors.New("providers.llm.model is required"))
	}
	if llm.Name == "openai" && llm.APIKey == "" && llm.BaseURL == "" {
		errs = append(errs, errors.New("providers.llm: openai requires api_key unless base_url points at a compatible local server"))
	}

	// Model
	if cfg.Model.Temperature < 0 || cfg.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature %.2f is out of range [0, 2]", cfg.Model.Temperature))
	}
	if cfg.Model.TurnTimeout < 0 {
		errs = append(errs, fmt.Errorf("model.turn_timeout %s must be positive", cfg.Model.TurnTimeout))
	}
	if cfg.Model.StartupTimeout < 0 {
		errs = append(errs, fmt.Errorf("model.startup_timeout %s must be positive", cfg.Model.StartupTimeout))
	}
	if cfg.Model.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("model.poll_interval %s must be positive", cfg.Model.PollInterval))
	}
	if cfg.Model.ContextWindow < 0 {
		errs = append(errs, fmt.Errorf("model.context_window %d must not be negative", cfg.Model.ContextWindow))
	}
	if cfg.Model.PollInterval > 0 && cfg.Model.StartupTimeout > 0 && cfg.Model.PollInterval > cfg.Model.StartupTimeout {
		errs = append(errs, fmt.Errorf("model.poll_interval %s exceeds model.startup_timeout %s", cfg.Model.PollInterval, cfg.Model.StartupTimeout))
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		slog.Debug("storage.postgres_dsn is empty; metrics are kept in memory and lost on exit")
	}

	// Documents
	if cfg.Documents.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("documents.max_file_size %d must be positive", cfg.Documents.MaxFileSize))
	}
	if cfg.Documents.MaxTextLength < 0 {
		errs = append(errs, fmt.Errorf("documents.max_text_length %d must be positive", cfg.Documents.MaxTextLength))
	}

	// Input
	if cfg.Input.MaxLength < 0 {
		errs = append(errs, fmt.Errorf("input.max_length %d must be positive", cfg.Input.MaxLength))
	}

	// Prompts
	for _, f := range []struct{ key, path string }{
		{"prompts.system_file", cfg.Prompts.SystemFile},
		{"prompts.planning_file", cfg.Prompts.PlanningFile},
		{"prompts.explain_file", cfg.Prompts.ExplainFile},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.key, err))
		}
	}

	return errors.Join(errs...)
}
