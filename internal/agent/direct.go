package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/pkg/provider/llm"
	"github.com/MrWong99/healthcompass/pkg/types"
)

// directResponder answers DIRECT_RESPONSE plans by sending the running
// conversation to the model.
type directResponder struct {
	provider    llm.Provider
	temperature float64
	metrics     *observe.Metrics
}

// Handle implements [Handler].
func (d *directResponder) Handle(ctx context.Context, req Request) (string, error) {
	msgs := conversation(req)
	if len(msgs) == 0 {
		return MsgDirectEmpty, nil
	}

	start := time.Now()
	resp, err := d.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    msgs,
		Temperature: d.temperature,
	})
	d.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("agent: direct response: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return MsgDirectEmpty, nil
	}
	return resp.Content, nil
}

// conversation returns the messages sent for a direct answer. Empty messages
// are dropped. When the transcript holds no user message the plan's query is
// sent on its own.
func conversation(req Request) []types.Message {
	msgs := make([]types.Message, 0, len(req.Transcript)+1)
	hasUser := false
	for _, m := range req.Transcript {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role == types.RoleUser {
			hasUser = true
		}
		msgs = append(msgs, m)
	}
	if !hasUser {
		q := strings.TrimSpace(req.Plan.Entities.Query)
		if q == "" {
			return nil
		}
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: q})
	}
	return msgs
}
