// Package llm defines the Provider interface for language model backends.
//
// A provider wraps a local or remote model API (a local Ollama server, an
// OpenAI-compatible endpoint, or a hosted backend reached through any-llm-go)
// and exposes a uniform single-shot completion call so the turn pipeline never
// couples to a specific SDK.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly: the per-turn timeout is enforced through ctx.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/healthcompass/pkg/types"
)

// ErrStreamingUnsupported is returned when a request asks for streaming
// output. Only non-streaming request/response is supported.
var ErrStreamingUnsupported = errors.New("llm: streaming mode is not supported")

// ErrUnreachable wraps transport-level failures (connection refused, DNS,
// reset) so callers can tell them apart from non-success responses.
var ErrUnreachable = errors.New("llm: endpoint unreachable")

// StatusError is returned when the endpoint answers with a non-success status.
type StatusError struct {
	// StatusCode is the HTTP status code returned by the endpoint.
	StatusCode int

	// Message is the error text reported by the endpoint, if any.
	Message string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llm: endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("llm: endpoint returned status %d: %s", e.StatusCode, e.Message)
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the user role and drives the response.
	Messages []types.Message

	// SystemPrompt is an optional instruction injected before Messages.
	// Providers without a dedicated field prepend it as a system message.
	SystemPrompt string

	// Temperature controls output randomness. Zero requests greedy decoding,
	// which is what intent classification wants.
	Temperature float64

	// MaxTokens caps the number of generated tokens. Zero means provider default.
	MaxTokens int

	// Stream asks for incremental output. Every provider rejects it with
	// [ErrStreamingUnsupported].
	Stream bool

	// Format is an optional JSON Schema the output must conform to. Providers
	// that support schema-guided decoding forward it to the backend; others
	// ignore it. The caller must still treat the output as untrusted.
	Format json.RawMessage
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any language model backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns [ErrStreamingUnsupported] when req.Stream is set, an error
	// wrapping [ErrUnreachable] for transport failures, a [*StatusError] for
	// non-success responses, and the context error when ctx ends first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the underlying model.
	Capabilities() types.ModelCapabilities
}

// GenerateOptions are the per-call knobs of [Generate].
type GenerateOptions struct {
	Temperature float64
	Stream      bool
	Format      json.RawMessage
}

// Generate sends prompt as a single user message and returns the generated
// text. It is the single-prompt form of [Provider.Complete].
func Generate(ctx context.Context, p Provider, prompt string, opts GenerateOptions) (string, error) {
	resp, err := p.Complete(ctx, CompletionRequest{
		Messages:    []types.Message{{Role: types.RoleUser, Content: prompt}},
		Temperature: opts.Temperature,
		Stream:      opts.Stream,
		Format:      opts.Format,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}
