package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/MrWong99/healthcompass/internal/plan"
	"github.com/MrWong99/healthcompass/internal/prompt"
	"github.com/MrWong99/healthcompass/pkg/provider/llm"
	llmmock "github.com/MrWong99/healthcompass/pkg/provider/llm/mock"
)

func TestPlanner_ValidPlan(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"intent":"LOG_METRIC","entities":{"metric_type":"weight","value":"75","unit":"kg","date":"today"}}`,
	}}
	planner := NewPlanner(p, prompt.NewBuilder(), WithPlannerTemperature(0), WithPlannerMetrics(testMetrics(t)))

	got, err := planner.Plan(context.Background(), "I weigh 75 kg today", refNow)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got.Intent != plan.IntentLogMetric || got.Entities.MetricType != "weight" || got.Entities.Value != "75" {
		t.Errorf("plan = %+v", got)
	}

	req := p.Calls()[0].Req
	if !json.Valid(req.Format) || string(req.Format) != string(plan.Schema()) {
		t.Errorf("Format = %s, want the plan schema", req.Format)
	}
	if req.Stream {
		t.Error("planner must not request streaming")
	}
	sent := req.Messages[0].Content
	if !strings.Contains(sent, "I weigh 75 kg today") || !strings.Contains(sent, "2025-01-06") {
		t.Errorf("planning prompt lacks query or date:\n%s", sent)
	}
}

func TestPlanner_InvalidOutputIsUnsure(t *testing.T) {
	t.Parallel()

	outputs := []string{
		"",
		"Sure! Here is your plan.",
		`{"intent":"ORDER_PIZZA"}`,
		`{"intent":"QUERY_METRICS","entities":{"aggregate":"median"}}`,
		`{"intent":"GREETING","entities":{"mood":"happy"}}`,
		`{"entities":{}}`,
	}
	for _, out := range outputs {
		p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: out}}
		got, err := NewPlanner(p, nil, WithPlannerMetrics(testMetrics(t))).Plan(context.Background(), "q", refNow)
		if err != nil {
			t.Errorf("%q: err = %v, want nil", out, err)
		}
		if got.Intent != plan.IntentUnsure {
			t.Errorf("%q: intent = %s, want UNSURE", out, got.Intent)
		}
	}
}

func TestPlanner_FencedOutput(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "```json\n{\"intent\":\"GREETING\"}\n```"}}
	got, err := NewPlanner(p, nil, WithPlannerMetrics(testMetrics(t))).Plan(context.Background(), "hello", refNow)
	if err != nil || got.Intent != plan.IntentGreeting {
		t.Errorf("plan = %+v, err = %v", got, err)
	}
}

func TestPlanner_TransportErrors(t *testing.T) {
	t.Parallel()

	for _, cause := range []error{llm.ErrUnreachable, context.DeadlineExceeded} {
		p := &llmmock.Provider{CompleteErr: fmt.Errorf("ollama: chat: %w", cause)}
		got, err := NewPlanner(p, nil, WithPlannerMetrics(testMetrics(t))).Plan(context.Background(), "q", refNow)
		if !errors.Is(err, cause) {
			t.Errorf("err = %v, want %v", err, cause)
		}
		if got.Intent != plan.IntentUnsure {
			t.Errorf("intent = %s, want UNSURE", got.Intent)
		}
	}
}
