package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/healthcompass/internal/agent"
	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/internal/plan"
	"github.com/MrWong99/healthcompass/pkg/provider/llm"
	"github.com/MrWong99/healthcompass/pkg/types"
)

var refNow = time.Date(2025, 1, 6, 10, 30, 0, 0, time.UTC)

// stubPlanner returns a fixed plan or error and records its inputs.
type stubPlanner struct {
	mu      sync.Mutex
	plan    plan.Plan
	err     error
	block   chan struct{}
	queries []string
}

func (p *stubPlanner) Plan(ctx context.Context, query string, _ time.Time) (plan.Plan, error) {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	block := p.block
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return plan.Unsure(), ctx.Err()
		}
	}
	return p.plan, p.err
}

func (p *stubPlanner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

// stubDispatcher replies with a fixed string and records what it saw.
type stubDispatcher struct {
	mu         sync.Mutex
	reply      string
	plans      []plan.Plan
	transcript []types.Message
}

func (d *stubDispatcher) Dispatch(_ context.Context, p plan.Plan, transcript []types.Message) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plans = append(d.plans, p)
	d.transcript = transcript
	return d.reply
}

func newTestSession(t *testing.T, p Planner, d Dispatcher, opts ...Option) *Session {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	base := []Option{WithMetrics(m), WithClock(func() time.Time { return refNow }), WithSystemPrompt("persona")}
	return New(p, d, append(base, opts...)...)
}

func TestTurn_PlansDispatchesAndResolves(t *testing.T) {
	t.Parallel()

	p := &stubPlanner{plan: plan.Plan{Intent: plan.IntentGreeting}}
	d := &stubDispatcher{reply: agent.MsgGreeting}
	s := newTestSession(t, p, d)

	reply, err := s.Turn(context.Background(), "  hello  ")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if reply != agent.MsgGreeting {
		t.Errorf("reply = %q", reply)
	}
	if p.queries[0] != "hello" {
		t.Errorf("planner query = %q, want trimmed input", p.queries[0])
	}

	got := s.Transcript().Snapshot()
	want := []types.Message{
		{Role: types.RoleSystem, Content: "persona"},
		{Role: types.RoleUser, Content: "hello"},
		{Role: types.RoleAssistant, Content: agent.MsgGreeting},
	}
	if len(got) != len(want) {
		t.Fatalf("transcript = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// The dispatcher sees the conversation without the pending placeholder.
	if len(d.transcript) != 2 || d.transcript[1].Role != types.RoleUser {
		t.Errorf("dispatched transcript = %+v", d.transcript)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
}

func TestTurn_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	p := &stubPlanner{}
	s := newTestSession(t, p, &stubDispatcher{reply: "x"}, WithMaxInputLength(10))

	if _, err := s.Turn(context.Background(), " \n\t"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("blank: err = %v", err)
	}
	if _, err := s.Turn(context.Background(), strings.Repeat("ä", 11)); !errors.Is(err, ErrInputTooLong) {
		t.Errorf("long: err = %v", err)
	}
	if _, err := s.Turn(context.Background(), strings.Repeat("ä", 10)); err != nil {
		t.Errorf("exactly at limit: err = %v", err)
	}
	if p.calls() != 1 {
		t.Errorf("planner called %d times, want 1", p.calls())
	}
	if n := s.Transcript().Len(); n != 3 {
		t.Errorf("transcript length = %d, want 3", n)
	}
}

func TestTurn_RejectsConcurrentTurn(t *testing.T) {
	t.Parallel()

	p := &stubPlanner{plan: plan.Plan{Intent: plan.IntentGreeting}, block: make(chan struct{})}
	s := newTestSession(t, p, &stubDispatcher{reply: "hi"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Turn(context.Background(), "first")
	}()

	deadline := time.After(2 * time.Second)
	for s.State() != StatePlanning {
		select {
		case <-deadline:
			t.Fatal("first turn never reached planning")
		case <-time.After(time.Millisecond):
		}
	}

	before := s.Transcript().Len()
	if _, err := s.Turn(context.Background(), "second"); !errors.Is(err, ErrTurnInProgress) {
		t.Errorf("err = %v, want ErrTurnInProgress", err)
	}
	if s.Transcript().Len() != before {
		t.Error("rejected turn must not touch the transcript")
	}

	close(p.block)
	<-done
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
}

func TestTurn_PlannerFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unreachable", fmt.Errorf("agent: plan: %w", llm.ErrUnreachable), agent.MsgUnreachable},
		{"status", &llm.StatusError{StatusCode: 404, Message: "model not found"}, agent.MsgUnreachable},
		{"deadline", fmt.Errorf("agent: plan: %w", context.DeadlineExceeded), agent.MsgTimeout},
		{"cancelled", context.Canceled, agent.MsgCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &stubDispatcher{reply: "unused"}
			s := newTestSession(t, &stubPlanner{err: tt.err}, d)

			reply, err := s.Turn(context.Background(), "how am I doing?")
			if err != nil {
				t.Fatalf("Turn: %v", err)
			}
			if reply != tt.want {
				t.Errorf("reply = %q, want %q", reply, tt.want)
			}
			if len(d.plans) != 0 {
				t.Error("dispatcher must not run after a planning failure")
			}
			msgs := s.Transcript().Snapshot()
			if last := msgs[len(msgs)-1]; last.Role != types.RoleAssistant || last.Content != tt.want {
				t.Errorf("last message = %+v", last)
			}
		})
	}
}

func TestTurn_TimeoutDuringPlanning(t *testing.T) {
	t.Parallel()

	p := &stubPlanner{block: make(chan struct{})}
	s := newTestSession(t, p, &stubDispatcher{reply: "unused"}, WithTurnTimeout(20*time.Millisecond))

	reply, err := s.Turn(context.Background(), "slow question")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if reply != agent.MsgTimeout {
		t.Errorf("reply = %q, want %q", reply, agent.MsgTimeout)
	}
}

func TestTurn_AttachmentShortCircuitsPlanner(t *testing.T) {
	t.Parallel()

	p := &stubPlanner{plan: plan.Plan{Intent: plan.IntentGreeting}}
	d := &stubDispatcher{reply: "Your cholesterol is normal."}
	s := newTestSession(t, p, d)

	s.Attach("/home/me/labs.pdf", "labs.pdf")
	reply, err := s.Turn(context.Background(), "what does this say?")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if reply != "Your cholesterol is normal." {
		t.Errorf("reply = %q", reply)
	}
	if p.calls() != 0 {
		t.Error("planner must be skipped when a document is attached")
	}
	got := d.plans[0]
	if got.Intent != plan.IntentExplainDocument || got.Entities.PDFFilePath != "/home/me/labs.pdf" || got.Entities.Query != "what does this say?" {
		t.Errorf("plan = %+v", got)
	}

	msgs := s.Transcript().Snapshot()
	if user := msgs[1].Content; user != "what does this say?\n\nPDF file attached: labs.pdf" {
		t.Errorf("user message = %q", user)
	}

	if _, ok := s.Attachment(); ok {
		t.Error("attachment must be cleared after the turn")
	}
	if _, err := s.Turn(context.Background(), "hi"); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if p.calls() != 1 {
		t.Error("next turn must go through the planner again")
	}
}

func TestTurn_AttachmentClearedOnFailure(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &stubPlanner{}, &stubDispatcher{reply: agent.MsgExplainError})
	s.Attach("/tmp/broken.pdf", "")

	if a, ok := s.Attachment(); !ok || a.Name != "/tmp/broken.pdf" {
		t.Errorf("attachment = %+v, %v; name should default to the path", a, ok)
	}
	if _, err := s.Turn(context.Background(), "explain"); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if _, ok := s.Attachment(); ok {
		t.Error("attachment must be cleared even when the handler apologised")
	}
}

func TestTurn_ContextWindowTrimsHistory(t *testing.T) {
	t.Parallel()

	d := &stubDispatcher{reply: strings.Repeat("r", 40)}
	s := newTestSession(t, &stubPlanner{plan: plan.Plan{Intent: plan.IntentDirectResponse}}, d, WithContextWindow(30))

	for i := range 5 {
		if _, err := s.Turn(context.Background(), fmt.Sprintf("question %d %s", i, strings.Repeat("q", 40))); err != nil {
			t.Fatalf("Turn %d: %v", i, err)
		}
	}
	if d.transcript[0].Role != types.RoleSystem {
		t.Errorf("system message dropped: %+v", d.transcript[0])
	}
	if last := d.transcript[len(d.transcript)-1]; !strings.HasPrefix(last.Content, "question 4") {
		t.Errorf("newest message missing: %+v", last)
	}
	if len(d.transcript) >= s.Transcript().Len()-1 {
		t.Errorf("history not trimmed: %d messages", len(d.transcript))
	}
}

func TestNew_AssignsID(t *testing.T) {
	t.Parallel()

	a := newTestSession(t, &stubPlanner{}, &stubDispatcher{})
	b := newTestSession(t, &stubPlanner{}, &stubDispatcher{})
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("ids = %q, %q", a.ID(), b.ID())
	}
	if c := newTestSession(t, &stubPlanner{}, &stubDispatcher{}, WithID("fixed")); c.ID() != "fixed" {
		t.Errorf("ID = %q", c.ID())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for st, want := range map[State]string{StateIdle: "idle", StatePlanning: "planning", StateDispatching: "dispatching", State(9): "State(9)"} {
		if got := st.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
