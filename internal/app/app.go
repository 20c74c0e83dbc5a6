// Package app wires all Health Compass subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, [App.Run] executes the interactive chat loop, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithExtractor, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/healthcompass/internal/agent"
	"github.com/MrWong99/healthcompass/internal/config"
	"github.com/MrWong99/healthcompass/internal/document"
	"github.com/MrWong99/healthcompass/internal/health"
	"github.com/MrWong99/healthcompass/internal/observe"
	"github.com/MrWong99/healthcompass/internal/prompt"
	"github.com/MrWong99/healthcompass/internal/session"
	"github.com/MrWong99/healthcompass/pkg/metrics"
	"github.com/MrWong99/healthcompass/pkg/metrics/memstore"
	"github.com/MrWong99/healthcompass/pkg/metrics/postgres"
	"github.com/MrWong99/healthcompass/pkg/provider/llm"
)

// Start-up notifications shown once before the first prompt.
const (
	MsgModelReady  = "Model server initialized successfully"
	MsgModelFailed = "Failed to initialize the model server: %v"
)

// Endpoint supervises a local model server. [ollama.Supervisor] satisfies it.
type Endpoint interface {
	// EnsureReady starts the server and fetches the model as needed.
	EnsureReady(ctx context.Context) error

	// Ping is a side-effect free liveness probe.
	Ping(ctx context.Context) error
}

// Providers holds the model backend. Populated by the CLI via the config
// registry.
type Providers struct {
	// Name labels provider metrics (e.g. "ollama").
	Name string

	// LLM answers planning and generation requests. Required.
	LLM llm.Provider

	// Endpoint is the local server lifecycle. Nil for hosted backends.
	Endpoint Endpoint
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store     metrics.Store
	extractor agent.Extractor
	prompts   *prompt.Builder
	metrics   *observe.Metrics
	now       func() time.Time
	session   *session.Session
	health    *health.Handler

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a metric store instead of creating one from config.
func WithStore(s metrics.Store) Option {
	return func(a *App) { a.store = s }
}

// WithExtractor injects a document extractor instead of running pdftotext.
func WithExtractor(e agent.Extractor) Option {
	return func(a *App) { a.extractor = e }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithClock overrides the reference clock used for relative dates.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from the CLI (populated via the config registry).
//
// New performs all initialisation synchronously: prompt loading, metric store
// connection and migration, document extractor setup, and assembly of the
// planner, handler registry, dispatcher and chat session. It does not touch
// the model server; see [App.InitModel].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: a model provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Prompts ───────────────────────────────────────────────────────
	if err := a.initPrompts(); err != nil {
		return nil, fmt.Errorf("app: init prompts: %w", err)
	}

	// ── 2. Metric store ──────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 3. Document extractor ────────────────────────────────────────────
	if a.extractor == nil {
		a.extractor = document.New(
			document.WithToolPath(cfg.Documents.PDFToTextPath),
			document.WithMaxFileSize(cfg.Documents.MaxFileSize),
			document.WithMaxTextLength(cfg.Documents.MaxTextLength),
		)
	}

	// ── 4. Planner, handlers, dispatcher, session ────────────────────────
	a.initSession()

	// ── 5. Readiness checks ──────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initPrompts() error {
	opts, err := prompt.LoadFiles(prompt.Files{
		System:   a.cfg.Prompts.SystemFile,
		Planning: a.cfg.Prompts.PlanningFile,
		Explain:  a.cfg.Prompts.ExplainFile,
	})
	if err != nil {
		return err
	}
	a.prompts = prompt.NewBuilder(opts...)
	return nil
}

// initStore connects to PostgreSQL when a DSN is configured and falls back
// to an in-memory store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		slog.Warn("storage.postgres_dsn is empty; metrics will be lost on exit")
		a.store = memstore.New()
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	slog.Info("connected to metric store")
	return nil
}

func (a *App) initSession() {
	provider := instrument(a.providers.LLM, a.providers.Name, a.metrics)
	temperature := a.cfg.Model.Temperature

	planner := agent.NewPlanner(provider, a.prompts,
		agent.WithPlannerTemperature(temperature),
		agent.WithPlannerMetrics(a.metrics),
	)
	handlers := agent.NewRegistry(agent.Deps{
		Provider:    provider,
		Store:       a.store,
		Extractor:   a.extractor,
		Prompts:     a.prompts,
		Temperature: temperature,
		Metrics:     a.metrics,
	})
	dispatcher := agent.NewDispatcher(handlers,
		agent.WithMetrics(a.metrics),
		agent.WithClock(a.now),
	)

	a.session = session.New(planner, dispatcher,
		session.WithTurnTimeout(a.cfg.Model.TurnTimeout),
		session.WithMaxInputLength(a.cfg.Input.MaxLength),
		session.WithContextWindow(a.cfg.Model.ContextWindow),
		session.WithSystemPrompt(a.prompts.System()),
		session.WithClock(a.now),
		session.WithMetrics(a.metrics),
	)
	slog.Debug("chat session created", "session_id", a.session.ID())
}

func (a *App) initHealth() {
	var checkers []health.Checker
	if ep := a.providers.Endpoint; ep != nil {
		checkers = append(checkers, health.Checker{Name: "model", Check: ep.Ping})
	}
	if p, ok := a.store.(metrics.Pinger); ok {
		checkers = append(checkers, health.Checker{Name: "store", Check: p.Ping})
	}
	a.health = health.New(checkers...)
}

// ─── Operations ──────────────────────────────────────────────────────────────

// Session returns the chat session.
func (a *App) Session() *session.Session { return a.session }

// InitModel runs the model server lifecycle once and returns the start-up
// notification for the user. A failure is not fatal: the chat still starts
// and turns report the unreachable server. Hosted backends have no lifecycle;
// InitModel returns "" for them.
func (a *App) InitModel(ctx context.Context) string {
	ep := a.providers.Endpoint
	if ep == nil {
		return ""
	}
	if err := ep.EnsureReady(ctx); err != nil {
		slog.Error("model server initialisation failed", "err", err)
		return fmt.Sprintf(MsgModelFailed, err)
	}
	return MsgModelReady
}

// Ask runs a single turn. A non-empty attachment path attaches that PDF to
// the turn.
func (a *App) Ask(ctx context.Context, text, attachment string) (string, error) {
	if attachment != "" {
		a.session.Attach(attachment, filepath.Base(attachment))
	}
	return a.session.Turn(ctx, text)
}

// Doctor evaluates every readiness check and reports the outcome per check.
func (a *App) Doctor(ctx context.Context) (map[string]string, bool) {
	return a.health.Evaluate(ctx)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Debug("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Debug("shutdown complete")
	})
	return shutdownErr
}
