package main

import (
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/healthcompass/internal/app"
	"github.com/MrWong99/healthcompass/internal/config"
	"github.com/MrWong99/healthcompass/pkg/provider/llm"
	"github.com/MrWong99/healthcompass/pkg/provider/llm/anyllm"
	"github.com/MrWong99/healthcompass/pkg/provider/llm/ollama"
	"github.com/MrWong99/healthcompass/pkg/provider/llm/openai"
)

// hostedBackends are reached through any-llm-go.
var hostedBackends = []string{"anthropic", "gemini", "llamacpp"}

// registerBuiltinProviders wires all built-in model provider factories into
// reg. Each factory receives a config.ProviderEntry and constructs the
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ollama talks to the local server's native API; it uses BaseURL for the
	// address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []ollama.Option
		if entry.BaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ollama.WithTimeout(d))
		}
		return ollama.New(entry.Model, opts...)
	})

	// openai also covers OpenAI-compatible local servers through BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := config.OptString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range hostedBackends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildProviders instantiates the configured model provider and, for a local
// Ollama server, its lifecycle supervisor.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	entry := cfg.Providers.LLM
	p, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	ps := &app.Providers{Name: entry.Name, LLM: p}

	if entry.Name == "ollama" {
		opts := []ollama.SupervisorOption{
			ollama.WithStartupTimeout(cfg.Model.StartupTimeout),
			ollama.WithPollInterval(cfg.Model.PollInterval),
			ollama.WithAutoStart(cfg.Model.StartsServer()),
			ollama.WithAutoPull(cfg.Model.PullsModel()),
		}
		if entry.BaseURL != "" {
			opts = append(opts, ollama.WithEndpoint(entry.BaseURL))
		}
		sup, err := ollama.NewSupervisor(entry.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("create model supervisor: %w", err)
		}
		ps.Endpoint = sup
	}

	slog.Debug("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
	return ps, nil
}

// optDuration reads a duration option given either as a Go duration string
// ("90s") or as a number of seconds.
func optDuration(opts map[string]any, key string) time.Duration {
	switch v := opts[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}
		return d
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return 0
}
