// Package agent turns a validated [plan.Plan] into the assistant's reply.
//
// The two primary abstractions are:
//
//   - [Planner] classifies a user message into a plan by asking the model for
//     schema-constrained JSON and validating the result.
//   - [Dispatcher] routes a plan to exactly one [Handler] from a fixed
//     intent registry and converts every failure into a user-facing message.
//
// Handlers live one per file (greeting.go, direct.go, explain.go,
// logmetric.go, query.go, unsure.go). They never return an empty reply: input
// problems become clarification messages and collaborator failures are
// returned as errors carrying an [Apology].
//
// This package lives under internal/ because it encapsulates application-private
// orchestration logic and is not intended to be imported by external code.
package agent

import (
	"context"
	"time"

	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/internal/plan"
	"github.com/MrWong99/healthcompass/internal/prompt"
	"github.com/MrWong99/healthcompass/pkg/metrics"
	"github.com/MrWong99/healthcompass/pkg/provider/llm"
	"github.com/MrWong99/healthcompass/pkg/types"
)

// Request is the input of a single handler invocation.
type Request struct {
	// Plan is the validated plan being acted on.
	Plan plan.Plan

	// Transcript is a snapshot of the conversation. The first message is the
	// system persona; the pending assistant placeholder of the current turn
	// is already excluded.
	Transcript []types.Message

	// Now is the reference instant for resolving relative dates and times.
	Now time.Time
}

// Handler produces the reply for one intent.
//
// A non-nil error means the reply could not be produced; the [Dispatcher]
// renders it with [ApologyFor]. Implementations must honour ctx cancellation.
type Handler interface {
	Handle(ctx context.Context, req Request) (string, error)
}

// HandlerFunc adapts a plain function to [Handler].
type HandlerFunc func(ctx context.Context, req Request) (string, error)

// Handle implements [Handler].
func (f HandlerFunc) Handle(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Extractor returns the plain text of a document on disk.
// [document.Extractor] satisfies it.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Deps are the collaborators shared by the handlers built by [NewRegistry].
type Deps struct {
	// Provider answers direct questions and explains reports.
	Provider llm.Provider

	// Store persists and queries metric records.
	Store metrics.Store

	// Extractor reads attached PDF reports.
	Extractor Extractor

	// Prompts renders the explain prompt. Defaults to [prompt.NewBuilder].
	Prompts *prompt.Builder

	// Temperature is the sampling temperature for generated answers.
	Temperature float64

	// Metrics records handler latencies. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Prompts == nil {
		d.Prompts = prompt.NewBuilder()
	}
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	return d
}
