// Package session runs conversation turns.
//
// A [Session] owns one [Transcript] and drives each turn through
// idle → planning → dispatching → idle. Turns are strictly sequential: a
// second turn started while one is in flight is rejected, never queued.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/healthcompass/internal/agent"
	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/internal/plan"
	"github.com/MrWong99/healthcompass/internal/prompt"
	"github.com/MrWong99/healthcompass/pkg/types"
)

// Defaults for [New].
const (
	DefaultMaxInputLength = 4000
	DefaultTurnTimeout    = 30 * time.Second
)

var (
	// ErrEmptyInput is returned by [Session.Turn] for blank input.
	ErrEmptyInput = errors.New("session: empty input")

	// ErrInputTooLong is returned by [Session.Turn] when the input exceeds the
	// configured maximum length.
	ErrInputTooLong = errors.New("session: input too long")

	// ErrTurnInProgress is returned by [Session.Turn] while another turn is
	// running.
	ErrTurnInProgress = errors.New("session: turn already in progress")
)

// State is the phase of the current turn.
type State int32

const (
	StateIdle State = iota
	StatePlanning
	StateDispatching
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateDispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Planner classifies a user message. [agent.Planner] satisfies it.
type Planner interface {
	Plan(ctx context.Context, query string, now time.Time) (plan.Plan, error)
}

// Dispatcher turns a plan into a reply. [agent.Dispatcher] satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, p plan.Plan, transcript []types.Message) string
}

// Attachment is a document attached to the next turn.
type Attachment struct {
	// Path is the file system path handed to the extractor.
	Path string

	// Name is the display name shown in the transcript.
	Name string
}

// Session holds one conversation. All methods are safe for concurrent use.
type Session struct {
	id         string
	planner    Planner
	dispatcher Dispatcher
	transcript *Transcript

	turnTimeout   time.Duration
	maxInput      int
	contextWindow int
	now           func() time.Time
	metrics       *observe.Metrics

	turnMu sync.Mutex
	state  atomic.Int32

	attachMu   sync.Mutex
	attachment *Attachment
}

// Option is a functional option for [New].
type Option func(*Session)

// WithTurnTimeout bounds each turn, planning and handling included.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.turnTimeout = d
		}
	}
}

// WithMaxInputLength sets the longest accepted input in characters.
func WithMaxInputLength(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxInput = n
		}
	}
}

// WithContextWindow caps the estimated token size of the transcript handed to
// handlers. Older messages are left out first; the system message is always
// kept. Zero disables the cap.
func WithContextWindow(tokens int) Option {
	return func(s *Session) { s.contextWindow = tokens }
}

// WithSystemPrompt seeds the transcript with a custom persona.
func WithSystemPrompt(text string) Option {
	return func(s *Session) { s.transcript = NewTranscript(text) }
}

// WithClock overrides the clock used as the reference for relative dates.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithID sets the session identifier. Defaults to a random UUID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New returns an idle Session.
func New(planner Planner, dispatcher Dispatcher, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		planner:     planner,
		dispatcher:  dispatcher,
		transcript:  NewTranscript(prompt.SystemPrompt),
		turnTimeout: DefaultTurnTimeout,
		maxInput:    DefaultMaxInputLength,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the phase of the current turn.
func (s *Session) State() State { return State(s.state.Load()) }

// Transcript returns the session transcript.
func (s *Session) Transcript() *Transcript { return s.transcript }

// Attach sets the document for the next turn, replacing any previous one. An
// empty name defaults to the path.
func (s *Session) Attach(path, name string) {
	if name == "" {
		name = path
	}
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	s.attachment = &Attachment{Path: path, Name: name}
}

// Attachment returns the pending attachment, if any.
func (s *Session) Attachment() (Attachment, bool) {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	if s.attachment == nil {
		return Attachment{}, false
	}
	return *s.attachment, true
}

func (s *Session) clearAttachment() {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	s.attachment = nil
}

// Turn runs one conversation turn for text and returns the assistant's
// reply. The reply is never empty; failures of the model or the handlers are
// reported in it.
//
// Input validation errors ([ErrEmptyInput], [ErrInputTooLong]) and
// [ErrTurnInProgress] leave the transcript untouched. An attached document
// is consumed by the turn whatever its outcome.
func (s *Session) Turn(ctx context.Context, text string) (string, error) {
	input := strings.TrimSpace(text)
	if input == "" {
		return "", ErrEmptyInput
	}
	if n := utf8.RuneCountInString(input); n > s.maxInput {
		return "", fmt.Errorf("%w: %d characters, limit %d", ErrInputTooLong, n, s.maxInput)
	}
	if !s.turnMu.TryLock() {
		return "", ErrTurnInProgress
	}
	defer s.turnMu.Unlock()
	defer s.setState(StateIdle)

	att, attached := s.Attachment()
	defer s.clearAttachment()

	ctx, cancel := context.WithTimeout(observe.WithSessionID(ctx, s.id), s.turnTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "session.turn",
		trace.WithAttributes(attribute.String("session_id", s.id)))
	defer span.End()

	start := time.Now()
	s.metrics.ActiveTurns.Add(ctx, 1)
	defer func() {
		s.metrics.ActiveTurns.Add(ctx, -1)
		s.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	}()

	content := input
	if attached {
		content = fmt.Sprintf("%s\n\nPDF file attached: %s", input, att.Name)
	}
	pending := s.transcript.begin(content)
	now := s.now()

	var p plan.Plan
	if attached {
		p = plan.Plan{
			Intent:   plan.IntentExplainDocument,
			Entities: plan.Entities{Query: input, PDFFilePath: att.Path},
		}
	} else {
		s.setState(StatePlanning)
		var err error
		p, err = s.planner.Plan(ctx, content, now)
		if err != nil {
			observe.Logger(ctx).Error("planning failed", "err", err)
			reply := boundaryMessage(err)
			s.transcript.resolve(pending, reply)
			return reply, nil
		}
	}

	s.setState(StateDispatching)
	span.SetAttributes(attribute.String("intent", string(p.Intent)))
	history := window(s.transcript.before(pending), s.contextWindow)
	reply := s.dispatcher.Dispatch(ctx, p, history)
	s.transcript.resolve(pending, reply)
	return reply, nil
}

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// boundaryMessage reports a planning failure. The planner only fails when the
// model could not answer at all.
func boundaryMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return agent.MsgTimeout
	case errors.Is(err, context.Canceled):
		return agent.MsgCancelled
	default:
		return agent.MsgUnreachable
	}
}
