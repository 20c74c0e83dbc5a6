// Package types defines the shared types used across Health Compass packages.
//
// These types are the lingua franca between model providers, the turn
// pipeline and the conversation surface. Each package defines its own domain
// types; only cross-cutting data structures live here to avoid circular
// imports.
package types

// Message roles understood by every model provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation transcript.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the text content of the message. An assistant message with
	// empty content is a pending placeholder while a turn is in flight.
	Content string
}

// ModelCapabilities describes what a language model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsStructuredOutput indicates the backend honours an output schema
	// constraint (schema-guided decoding).
	SupportsStructuredOutput bool

	// SupportsStreaming indicates the model supports streaming completions.
	// Health Compass never requests streaming; the flag is informational.
	SupportsStreaming bool
}
