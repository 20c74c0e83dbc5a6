package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/internal/plan"
	"github.com/MrWong99/healthcompass/pkg/types"
)

// Dispatcher routes a plan to the handler registered for its intent. It is
// safe for concurrent use; the handler map is never mutated after
// construction.
type Dispatcher struct {
	handlers map[plan.Intent]Handler
	metrics  *observe.Metrics
	now      func() time.Time
}

// DispatcherOption is a functional option for [NewDispatcher].
type DispatcherOption func(*Dispatcher)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithClock overrides the reference clock passed to handlers as
// [Request.Now].
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher returns a Dispatcher over a copy of handlers.
func NewDispatcher(handlers map[plan.Intent]Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[plan.Intent]Handler, len(handlers)),
		now:      time.Now,
	}
	for intent, h := range handlers {
		d.handlers[intent] = h
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Dispatch runs the handler for p and returns the reply. It always returns a
// non-empty message: an unregistered intent, a handler error, an empty reply
// and a handler panic all map to an apology. Handlers are invoked at most
// once; nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, p plan.Plan, transcript []types.Message) (reply string) {
	intent := string(p.Intent)
	ctx, span := observe.StartSpan(ctx, "agent.dispatch",
		trace.WithAttributes(attribute.String("intent", intent)))
	defer span.End()

	h, ok := d.handlers[p.Intent]
	if !ok {
		observe.Logger(ctx).Warn("no handler for intent", "intent", intent)
		span.SetStatus(codes.Error, "no handler")
		return MsgUnableToProcess
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			observe.Logger(ctx).Error("handler panicked",
				"intent", intent,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			span.SetStatus(codes.Error, "panic")
			d.metrics.RecordHandlerOutcome(ctx, intent, "panic")
			reply = MsgUnableToProcess
		}
		d.metrics.HandlerDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("intent", intent)))
	}()

	out, err := h.Handle(ctx, Request{Plan: p, Transcript: transcript, Now: d.now()})
	if err != nil {
		observe.Logger(ctx).Error("handler failed", "intent", intent, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.RecordHandlerOutcome(ctx, intent, "error")
		return ApologyFor(err)
	}
	if strings.TrimSpace(out) == "" {
		observe.Logger(ctx).Warn("handler returned an empty reply", "intent", intent)
		d.metrics.RecordHandlerOutcome(ctx, intent, "empty")
		return MsgUnableToProcess
	}

	d.metrics.RecordHandlerOutcome(ctx, intent, "ok")
	return out
}
