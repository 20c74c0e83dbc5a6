package session

import (
	"slices"
	"sync"

	"github.com/MrWong99/healthcompass/pkg/types"
)

// charsPerToken is the heuristic ratio used for token estimation.
// English text averages roughly 4 characters per token across common
// tokenizers.
const charsPerToken = 4

// Transcript is the ordered conversation of one session. The first message
// is always the system persona.
//
// Readers may take snapshots at any time, including while a turn is in
// flight. All methods are safe for concurrent use.
type Transcript struct {
	mu       sync.RWMutex
	messages []types.Message
}

// NewTranscript returns a transcript seeded with the system message.
func NewTranscript(system string) *Transcript {
	return &Transcript{
		messages: []types.Message{{Role: types.RoleSystem, Content: system}},
	}
}

// Snapshot returns a copy of every message, including a pending assistant
// placeholder if a turn is in flight.
func (t *Transcript) Snapshot() []types.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.messages)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// TokenEstimate returns the estimated token count of the whole transcript.
func (t *Transcript) TokenEstimate() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, m := range t.messages {
		n += estimateTokens(m)
	}
	return n
}

// begin appends the user message and an empty assistant placeholder and
// returns the placeholder's index.
func (t *Transcript) begin(user string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages,
		types.Message{Role: types.RoleUser, Content: user},
		types.Message{Role: types.RoleAssistant},
	)
	return len(t.messages) - 1
}

// before returns a copy of the messages preceding index i.
func (t *Transcript) before(i int) []types.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.messages[:i])
}

// resolve replaces the placeholder at index i with the final reply.
func (t *Transcript) resolve(i int, reply string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages[i].Content = reply
}

// window returns the leading system message plus the newest messages whose
// estimated size fits maxTokens. The newest message is always kept. A
// non-positive maxTokens returns msgs unchanged.
func window(msgs []types.Message, maxTokens int) []types.Message {
	if maxTokens <= 0 || len(msgs) == 0 {
		return msgs
	}

	var head []types.Message
	rest := msgs
	budget := maxTokens
	if msgs[0].Role == types.RoleSystem {
		head = msgs[:1]
		rest = msgs[1:]
		budget -= estimateTokens(msgs[0])
	}

	start := len(rest)
	for start > 0 {
		cost := estimateTokens(rest[start-1])
		if budget-cost < 0 && start < len(rest) {
			break
		}
		budget -= cost
		start--
	}

	out := make([]types.Message, 0, len(head)+len(rest)-start)
	out = append(out, head...)
	return append(out, rest[start:]...)
}

// estimateTokens returns a rough token count for a single message.
func estimateTokens(m types.Message) int {
	return (len(m.Role) + len(m.Content)) / charsPerToken
}
