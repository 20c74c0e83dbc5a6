package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/internal/plan"
	"github.com/MrWong99/healthcompass/pkg/provider/llm"
	"github.com/MrWong99/healthcompass/pkg/types"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func reply(s string) Handler {
	return HandlerFunc(func(context.Context, Request) (string, error) { return s, nil })
}

func failing(err error) Handler {
	return HandlerFunc(func(context.Context, Request) (string, error) { return "", err })
}

func TestDispatch_RoutesToRegisteredHandler(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	transcript := []types.Message{{Role: types.RoleSystem, Content: "persona"}, {Role: types.RoleUser, Content: "hi"}}

	var got Request
	d := NewDispatcher(map[plan.Intent]Handler{
		plan.IntentGreeting: HandlerFunc(func(_ context.Context, req Request) (string, error) {
			got = req
			return "hello there", nil
		}),
	}, WithMetrics(testMetrics(t)), WithClock(func() time.Time { return now }))

	p := plan.Plan{Intent: plan.IntentGreeting}
	if out := d.Dispatch(context.Background(), p, transcript); out != "hello there" {
		t.Errorf("Dispatch = %q", out)
	}
	if got.Plan.Intent != plan.IntentGreeting || !got.Now.Equal(now) || len(got.Transcript) != 2 {
		t.Errorf("handler request = %+v", got)
	}
}

func TestDispatch_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler Handler
		want    string
	}{
		{"error", failing(errors.New("boom")), MsgUnableToProcess},
		{"apology", failing(apologize(MsgQueryFailed, errors.New("db down"))), MsgQueryFailed},
		{"deadline", failing(fmt.Errorf("agent: explain: %w", context.DeadlineExceeded)), MsgTimeout},
		{"deadline beats apology", failing(apologize(MsgExplainError, context.DeadlineExceeded)), MsgTimeout},
		{"unreachable", failing(fmt.Errorf("ollama: chat: %w", llm.ErrUnreachable)), MsgUnreachable},
		{"empty reply", reply("   "), MsgUnableToProcess},
		{"panic", HandlerFunc(func(context.Context, Request) (string, error) { panic("nil map") }), MsgUnableToProcess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := NewDispatcher(map[plan.Intent]Handler{plan.IntentUnsure: tt.handler}, WithMetrics(testMetrics(t)))
			if got := d.Dispatch(context.Background(), plan.Unsure(), nil); got != tt.want {
				t.Errorf("Dispatch = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatch_UnregisteredIntent(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(map[plan.Intent]Handler{plan.IntentGreeting: reply("hi")}, WithMetrics(testMetrics(t)))
	if got := d.Dispatch(context.Background(), plan.Plan{Intent: plan.IntentLogMetric}, nil); got != MsgUnableToProcess {
		t.Errorf("Dispatch = %q, want %q", got, MsgUnableToProcess)
	}
}

func TestDispatch_InvokesHandlerOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	d := NewDispatcher(map[plan.Intent]Handler{
		plan.IntentQueryMetrics: HandlerFunc(func(context.Context, Request) (string, error) {
			calls++
			return "", errors.New("transient")
		}),
	}, WithMetrics(testMetrics(t)))
	d.Dispatch(context.Background(), plan.Plan{Intent: plan.IntentQueryMetrics}, nil)
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestNewDispatcher_CopiesHandlers(t *testing.T) {
	t.Parallel()

	handlers := map[plan.Intent]Handler{plan.IntentGreeting: reply("first")}
	d := NewDispatcher(handlers, WithMetrics(testMetrics(t)))
	handlers[plan.IntentGreeting] = reply("second")

	if got := d.Dispatch(context.Background(), plan.Plan{Intent: plan.IntentGreeting}, nil); got != "first" {
		t.Errorf("Dispatch = %q, want the handler registered at construction", got)
	}
}

func TestApologyFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, MsgUnableToProcess},
		{"plain", errors.New("x"), MsgUnableToProcess},
		{"deadline", context.DeadlineExceeded, MsgTimeout},
		{"status", &llm.StatusError{StatusCode: 500}, MsgUnableToProcess},
		{"unreachable", llm.ErrUnreachable, MsgUnreachable},
		{"apology", apologize(MsgLogFailed, errors.New("disk full")), MsgLogFailed},
		{"wrapped apology", fmt.Errorf("outer: %w", apologize(MsgLogFailed, nil)), MsgLogFailed},
	}
	for _, tt := range tests {
		if got := ApologyFor(tt.err); got != tt.want {
			t.Errorf("%s: ApologyFor = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNewRegistry_CoversEveryIntent(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(Deps{Metrics: testMetrics(t)})
	if len(reg) != len(plan.Intents) {
		t.Errorf("registry has %d entries, want %d", len(reg), len(plan.Intents))
	}
	for _, intent := range plan.Intents {
		if reg[intent] == nil {
			t.Errorf("no handler for %s", intent)
		}
	}

	d := NewDispatcher(reg, WithMetrics(testMetrics(t)))
	if got := d.Dispatch(context.Background(), plan.Plan{Intent: plan.IntentGreeting}, nil); got != MsgGreeting {
		t.Errorf("GREETING = %q", got)
	}
	if got := d.Dispatch(context.Background(), plan.Unsure(), nil); got != MsgUnsure {
		t.Errorf("UNSURE = %q", got)
	}
}
