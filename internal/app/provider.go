package app

import (
	"context"
	"errors"

	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/pkg/provider/llm"
)

// observedProvider counts requests and classified failures of the wrapped
// provider.
type observedProvider struct {
	llm.Provider
	name    string
	metrics *observe.Metrics
}

func instrument(p llm.Provider, name string, m *observe.Metrics) llm.Provider {
	if name == "" {
		name = "unknown"
	}
	return &observedProvider{Provider: p, name: name, metrics: m}
}

// Complete implements [llm.Provider].
func (p *observedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.Provider.Complete(ctx, req)
	if err != nil {
		p.metrics.RecordProviderRequest(ctx, p.name, "llm", "error")
		p.metrics.RecordProviderError(ctx, p.name, errorKind(err))
		return nil, err
	}
	p.metrics.RecordProviderRequest(ctx, p.name, "llm", "ok")
	return resp, nil
}

// errorKind buckets a provider failure for the error counter.
func errorKind(err error) string {
	var status *llm.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, llm.ErrUnreachable):
		return "unreachable"
	case errors.As(err, &status):
		return "status"
	default:
		return "other"
	}
}
