// Package config provides the configuration schema, loader, and provider registry
// for the Health Compass assistant.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultProvider       = "ollama"
	DefaultModel          = "gemma3n:e2b"
	DefaultTurnTimeout    = 30 * time.Second
	DefaultStartupTimeout = 30 * time.Second
	DefaultPollInterval   = time.Second
	DefaultPDFToText      = "pdftotext"
	DefaultMaxFileSize    = 2 << 20
	DefaultMaxTextLength  = 500_000
	DefaultMaxInputLength = 4000
)

// Config is the root configuration structure for Health Compass.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Model     ModelConfig     `yaml:"model"`
	Storage   StorageConfig   `yaml:"storage"`
	Documents DocumentsConfig `yaml:"documents"`
	Input     InputConfig     `yaml:"input"`
	Prompts   PromptsConfig   `yaml:"prompts"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// ListenAddr is the address for the /metrics and health endpoints
	// (e.g. ":9090"). Empty disables the HTTP listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls log verbosity. Defaults to "info".
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the model backend.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block for a single provider.
// The Name field selects which registered implementation to use.
type ProviderEntry struct {
	// Name identifies the provider implementation (e.g. "ollama", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication credential for hosted providers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the specific model variant (e.g. "gemma3n:e2b").
	Model string `yaml:"model"`

	// Options holds provider-specific settings that don't fit the common fields.
	Options map[string]any `yaml:"options"`
}

// ModelConfig tunes generation and the local model server lifecycle.
type ModelConfig struct {
	// Temperature is the sampling temperature for planning and answers.
	Temperature float64 `yaml:"temperature"`

	// TurnTimeout bounds a whole conversation turn.
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	// StartupTimeout bounds waiting for a freshly launched model server.
	StartupTimeout time.Duration `yaml:"startup_timeout"`

	// PollInterval is the liveness polling period during startup.
	PollInterval time.Duration `yaml:"poll_interval"`

	// AutoStart launches the local model server when it is not reachable.
	// Nil means true.
	AutoStart *bool `yaml:"auto_start"`

	// AutoPull downloads the configured model when it is missing.
	// Nil means true.
	AutoPull *bool `yaml:"auto_pull"`

	// ContextWindow caps the estimated tokens of conversation history sent
	// with direct answers. Zero sends the whole transcript.
	ContextWindow int `yaml:"context_window"`
}

// StartsServer reports whether the model server should be launched on demand.
func (m ModelConfig) StartsServer() bool { return m.AutoStart == nil || *m.AutoStart }

// PullsModel reports whether a missing model should be downloaded.
func (m ModelConfig) PullsModel() bool { return m.AutoPull == nil || *m.AutoPull }

// StorageConfig selects the metric store.
type StorageConfig struct {
	// PostgresDSN is the PostgreSQL connection string. When empty, metrics
	// are kept in memory for the lifetime of the process.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// DocumentsConfig bounds PDF report extraction.
type DocumentsConfig struct {
	PDFToTextPath string `yaml:"pdftotext_path"`
	MaxFileSize   int64  `yaml:"max_file_size"`
	MaxTextLength int    `yaml:"max_text_length"`
}

// InputConfig bounds user input.
type InputConfig struct {
	MaxLength int `yaml:"max_length"`
}

// PromptsConfig points at optional template overrides on disk. Empty paths
// keep the embedded defaults.
type PromptsConfig struct {
	SystemFile   string `yaml:"system_file"`
	PlanningFile string `yaml:"planning_file"`
	ExplainFile  string `yaml:"explain_file"`
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = DefaultProvider
	}
	if cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = DefaultModel
	}
	if cfg.Model.TurnTimeout == 0 {
		cfg.Model.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.Model.StartupTimeout == 0 {
		cfg.Model.StartupTimeout = DefaultStartupTimeout
	}
	if cfg.Model.PollInterval == 0 {
		cfg.Model.PollInterval = DefaultPollInterval
	}
	if cfg.Documents.PDFToTextPath == "" {
		cfg.Documents.PDFToTextPath = DefaultPDFToText
	}
	if cfg.Documents.MaxFileSize == 0 {
		cfg.Documents.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Documents.MaxTextLength == 0 {
		cfg.Documents.MaxTextLength = DefaultMaxTextLength
	}
	if cfg.Input.MaxLength == 0 {
		cfg.Input.MaxLength = DefaultMaxInputLength
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
