// Package ollama provides an LLM provider backed by a local Ollama server,
// plus a [Supervisor] that manages the server's lifecycle (liveness probe,
// detached launch, wait-for-ready, model presence check and pull).
//
// The provider talks to Ollama's native API through
// github.com/ollama/ollama/api, which supports schema-guided decoding via the
// request "format" field.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/healthcompass/pkg/provider/llm"
	"github.com/MrWong99/healthcompass/pkg/types"
)

// DefaultBaseURL is the address of a locally running Ollama server.
const DefaultBaseURL = "http://127.0.0.1:11434"

// Provider implements llm.Provider using a local Ollama server.
type Provider struct {
	client *api.Client
	model  string
}

// config holds optional configuration shared by [Provider] and [Supervisor].
type config struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option is a functional option for [New].
type Option func(*config)

// WithBaseURL overrides [DefaultBaseURL].
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client used to reach the server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithTimeout sets an HTTP client timeout. Ignored when [WithHTTPClient] is used.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs an Ollama-backed Provider for model.
func New(model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	client, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, model: model}, nil
}

func newClient(opts ...Option) (*api.Client, error) {
	cfg := &config{baseURL: DefaultBaseURL}
	for _, o := range opts {
		o(cfg)
	}
	u, err := url.Parse(strings.TrimRight(cfg.baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ollama: parse base url %q: %w", cfg.baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ollama: base url %q must include scheme and host", cfg.baseURL)
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	return api.NewClient(u, hc), nil
}

// Model returns the configured model identifier.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if req.Stream {
		return nil, llm.ErrStreamingUnsupported
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: convertMessages(req),
		Stream:   &stream,
		Format:   req.Format,
		Options:  map[string]any{"temperature": req.Temperature},
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}

	var (
		content strings.Builder
		final   api.ChatResponse
	)
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return nil, classifyError("chat", err)
	}

	return &llm.CompletionResponse{
		Content: content.String(),
		Usage: llm.Usage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
			TotalTokens:      final.PromptEvalCount + final.EvalCount,
		},
	}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return types.ModelCapabilities{
		ContextWindow:            8_192,
		MaxOutputTokens:          2_048,
		SupportsStructuredOutput: true,
		SupportsStreaming:        false,
	}
}

// convertMessages flattens the system prompt and transcript into Ollama chat
// messages.
func convertMessages(req llm.CompletionRequest) []api.Message {
	msgs := make([]api.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, api.Message{Role: types.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}

// classifyError maps Ollama client errors onto the llm error contract.
// Context errors are kept as-is so callers can detect the per-turn timeout.
func classifyError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("ollama: %s: %w", op, err)
	}

	var se api.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("ollama: %s: %w", op, &llm.StatusError{StatusCode: se.StatusCode, Message: se.ErrorMessage})
	}
	var sep *api.StatusError
	if errors.As(err, &sep) {
		return fmt.Errorf("ollama: %s: %w", op, &llm.StatusError{StatusCode: sep.StatusCode, Message: sep.ErrorMessage})
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("ollama: %s: %w: %v", op, llm.ErrUnreachable, err)
	}
	return fmt.Errorf("ollama: %s: %w", op, err)
}

var _ llm.Provider = (*Provider)(nil)
