package agent

import "github.com/MrWong99/healthcompass/internal/plan"

// NewRegistry returns the fixed intent-to-handler mapping, one entry per
// intent in [plan.Intents]. GREETING and UNSURE are static and need none of
// deps.
func NewRegistry(deps Deps) map[plan.Intent]Handler {
	deps = deps.withDefaults()
	return map[plan.Intent]Handler{
		plan.IntentGreeting: HandlerFunc(greet),
		plan.IntentDirectResponse: &directResponder{
			provider:    deps.Provider,
			temperature: deps.Temperature,
			metrics:     deps.Metrics,
		},
		plan.IntentExplainDocument: &reportExplainer{
			extractor:   deps.Extractor,
			provider:    deps.Provider,
			prompts:     deps.Prompts,
			temperature: deps.Temperature,
			metrics:     deps.Metrics,
		},
		plan.IntentLogMetric: &metricLogger{
			store:   deps.Store,
			metrics: deps.Metrics,
		},
		plan.IntentQueryMetrics: &metricQuerier{
			store:   deps.Store,
			metrics: deps.Metrics,
		},
		plan.IntentUnsure: HandlerFunc(unsure),
	}
}
