package agent

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/internal/plan"
	"github.com/MrWong99/healthcompass/internal/prompt"
	"github.com/MrWong99/healthcompass/pkg/provider/llm"
)

// Planner classifies user messages into plans.
type Planner struct {
	provider    llm.Provider
	prompts     *prompt.Builder
	temperature float64
	metrics     *observe.Metrics
}

// PlannerOption is a functional option for [NewPlanner].
type PlannerOption func(*Planner)

// WithPlannerTemperature sets the sampling temperature. Default 0.
func WithPlannerTemperature(t float64) PlannerOption {
	return func(p *Planner) { p.temperature = t }
}

// WithPlannerMetrics sets the metrics sink. Defaults to
// [observe.DefaultMetrics].
func WithPlannerMetrics(m *observe.Metrics) PlannerOption {
	return func(p *Planner) { p.metrics = m }
}

// NewPlanner returns a Planner that asks provider for plans rendered from
// prompts. A nil prompts uses the embedded templates.
func NewPlanner(provider llm.Provider, prompts *prompt.Builder, opts ...PlannerOption) *Planner {
	if prompts == nil {
		prompts = prompt.NewBuilder()
	}
	p := &Planner{provider: provider, prompts: prompts}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Plan classifies query. now anchors relative dates in the prompt.
//
// The error is non-nil only when the model could not be reached (transport,
// status or context errors). Output that fails to parse or validate yields an
// UNSURE plan and a nil error.
func (p *Planner) Plan(ctx context.Context, query string, now time.Time) (plan.Plan, error) {
	ctx, span := observe.StartSpan(ctx, "agent.plan")
	defer span.End()

	start := time.Now()
	defer func() {
		p.metrics.PlanDuration.Record(ctx, time.Since(start).Seconds())
	}()

	raw, err := llm.Generate(ctx, p.provider, p.prompts.Planning(now, query), llm.GenerateOptions{
		Temperature: p.temperature,
		Format:      plan.Schema(),
	})
	p.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return plan.Unsure(), fmt.Errorf("agent: plan: %w", err)
	}

	pl, verr := plan.ValidateDocument(raw)
	if verr != nil {
		observe.Logger(ctx).Warn("model output rejected, treating as unsure", "err", verr, "raw", raw)
	}
	span.SetAttributes(attribute.String("intent", string(pl.Intent)))
	p.metrics.RecordIntent(ctx, string(pl.Intent))
	return pl, nil
}
