package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/healthcompass/internal/observe"
)

// Sentinel errors returned by [Supervisor.EnsureReady]. Each is wrapped with
// detail; compare with errors.Is.
var (
	ErrEndpointUnreachable = errors.New("ollama: endpoint unreachable")
	ErrStartupTimeout      = errors.New("ollama: startup timeout")
	ErrModelFetchFailed    = errors.New("ollama: model fetch failed")
)

const (
	defaultPollInterval   = time.Second
	defaultStartupTimeout = 30 * time.Second
)

// State is the lifecycle state of the local model endpoint.
type State int32

const (
	StateUnknown State = iota
	StateProbing
	StateLaunching
	StateWaiting
	StateReady
	StateFailed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateProbing:
		return "probing"
	case StateLaunching:
		return "launching"
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Supervisor brings a local Ollama server to a usable state: it probes
// liveness, launches `ollama serve` detached when the server is down, polls
// until it answers, and makes sure the configured model is installed.
//
// EnsureReady calls are serialised. State may be read concurrently.
type Supervisor struct {
	client *api.Client
	model  string

	autoStart      bool
	autoPull       bool
	pollInterval   time.Duration
	startupTimeout time.Duration

	locate   func() (string, error)
	launch   func(binary string) error
	onChange func(State)

	clientOpts []Option

	state atomic.Int32
	mu    sync.Mutex
}

// SupervisorOption configures a [Supervisor].
type SupervisorOption func(*Supervisor)

// WithEndpoint sets the server base URL. Default: [DefaultBaseURL].
func WithEndpoint(baseURL string) SupervisorOption {
	return func(s *Supervisor) { s.clientOpts = append(s.clientOpts, WithBaseURL(baseURL)) }
}

// WithEndpointHTTPClient replaces the HTTP client used for probing and pulling.
func WithEndpointHTTPClient(hc *http.Client) SupervisorOption {
	return func(s *Supervisor) { s.clientOpts = append(s.clientOpts, WithHTTPClient(hc)) }
}

// WithPollInterval sets how often liveness is polled after a launch. Default: 1s.
func WithPollInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.pollInterval = d }
}

// WithStartupTimeout bounds the wait for a launched server. Default: 30s.
func WithStartupTimeout(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.startupTimeout = d }
}

// WithAutoStart controls whether a dead server is launched. Default: true.
func WithAutoStart(enabled bool) SupervisorOption {
	return func(s *Supervisor) { s.autoStart = enabled }
}

// WithAutoPull controls whether a missing model is pulled. Default: true.
func WithAutoPull(enabled bool) SupervisorOption {
	return func(s *Supervisor) { s.autoPull = enabled }
}

// WithLocator replaces the binary lookup (PATH, then OS install path).
func WithLocator(fn func() (string, error)) SupervisorOption {
	return func(s *Supervisor) { s.locate = fn }
}

// WithLauncher replaces the detached process launch.
func WithLauncher(fn func(binary string) error) SupervisorOption {
	return func(s *Supervisor) { s.launch = fn }
}

// OnStateChange registers fn to be called on every state transition.
func OnStateChange(fn func(State)) SupervisorOption {
	return func(s *Supervisor) { s.onChange = fn }
}

// NewSupervisor creates a Supervisor for model.
func NewSupervisor(model string, opts ...SupervisorOption) (*Supervisor, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: supervisor: model must not be empty")
	}
	s := &Supervisor{
		model:          model,
		autoStart:      true,
		autoPull:       true,
		pollInterval:   defaultPollInterval,
		startupTimeout: defaultStartupTimeout,
		locate:         LocateBinary,
		launch:         LaunchDetached,
	}
	for _, o := range opts {
		o(s)
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.startupTimeout <= 0 {
		s.startupTimeout = defaultStartupTimeout
	}

	client, err := newClient(s.clientOpts...)
	if err != nil {
		return nil, err
	}
	s.client = client
	return s, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Ping reports whether the server answers a liveness probe. It does not
// change the lifecycle state and is suitable for readiness checks.
func (s *Supervisor) Ping(ctx context.Context) error {
	if err := s.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEndpointUnreachable, err)
	}
	return nil
}

// EnsureReady drives the lifecycle to [StateReady] or [StateFailed].
//
// The returned error wraps [ErrEndpointUnreachable], [ErrStartupTimeout] or
// [ErrModelFetchFailed], or the context error when ctx ends first.
func (s *Supervisor) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setState(ctx, StateProbing)
	if err := s.client.Heartbeat(ctx); err != nil {
		observe.Logger(ctx).Info("model server not responding", "err", err)
		if !s.autoStart {
			return s.fail(ctx, fmt.Errorf("%w: %v", ErrEndpointUnreachable, err))
		}
		if err := s.start(ctx); err != nil {
			return s.fail(ctx, err)
		}
	}

	if err := s.ensureModel(ctx); err != nil {
		return s.fail(ctx, err)
	}

	s.setState(ctx, StateReady)
	observe.Logger(ctx).Info("model server ready", "model", s.model)
	return nil
}

// start locates and launches the server, then waits for it to answer.
func (s *Supervisor) start(ctx context.Context) error {
	s.setState(ctx, StateLaunching)
	bin, err := s.locate()
	if err != nil {
		return fmt.Errorf("%w: locate ollama binary: %v", ErrEndpointUnreachable, err)
	}
	if err := s.launch(bin); err != nil {
		return fmt.Errorf("%w: launch %s: %v", ErrEndpointUnreachable, bin, err)
	}
	observe.Logger(ctx).Info("launched model server", "binary", bin)

	s.setState(ctx, StateWaiting)
	return s.waitLive(ctx)
}

// waitLive polls the liveness probe until it succeeds or startupTimeout
// elapses. Cancellation of the parent ctx is reported as-is.
func (s *Supervisor) waitLive(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.startupTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := parent.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w: server did not answer within %s", ErrStartupTimeout, s.startupTimeout)
		case <-ticker.C:
			if err := s.client.Heartbeat(ctx); err == nil {
				return nil
			}
		}
	}
}

// ensureModel pulls the configured model when the server does not list it.
func (s *Supervisor) ensureModel(ctx context.Context) error {
	list, err := s.client.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: list models: %v", ErrEndpointUnreachable, err)
	}
	for _, m := range list.Models {
		if sameModel(m.Name, s.model) || sameModel(m.Model, s.model) {
			return nil
		}
	}
	if !s.autoPull {
		return fmt.Errorf("%w: model %q is not installed", ErrModelFetchFailed, s.model)
	}

	observe.Logger(ctx).Info("pulling model", "model", s.model)
	stream := false
	err = s.client.Pull(ctx, &api.PullRequest{Model: s.model, Stream: &stream}, func(p api.ProgressResponse) error {
		observe.Logger(ctx).Debug("pull progress", "model", s.model, "status", p.Status)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: pull %q: %v", ErrModelFetchFailed, s.model, err)
	}
	return nil
}

func (s *Supervisor) setState(ctx context.Context, st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev == st {
		return
	}
	observe.Logger(ctx).Debug("model server state", "from", prev, "to", st)
	if s.onChange != nil {
		s.onChange(st)
	}
}

func (s *Supervisor) fail(ctx context.Context, err error) error {
	s.setState(ctx, StateFailed)
	return err
}

// sameModel compares model references, treating a missing tag as ":latest".
func sameModel(a, b string) bool {
	return withTag(a) == withTag(b)
}

func withTag(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if !strings.Contains(name, ":") {
		return name + ":latest"
	}
	return name
}

// LocateBinary finds the ollama executable on PATH, falling back to the
// platform's default install location.
func LocateBinary() (string, error) {
	if p, err := exec.LookPath("ollama"); err == nil {
		return p, nil
	}
	fallback := FallbackPath(runtime.GOOS)
	if _, err := os.Stat(fallback); err != nil {
		return "", fmt.Errorf("ollama not found on PATH or at %s: %w", fallback, err)
	}
	return fallback, nil
}

// FallbackPath returns the well-known install path of ollama for goos.
func FallbackPath(goos string) string {
	switch goos {
	case "windows":
		return `C:\Program Files\Ollama\ollama.exe`
	case "darwin":
		return "/usr/local/bin/ollama"
	default:
		return "/usr/bin/ollama"
	}
}

// LaunchDetached starts `<binary> serve` in its own process group with stdio
// discarded and releases it so it outlives the caller.
func LaunchDetached(binary string) error {
	cmd := exec.Command(binary, "serve")
	cmd.SysProcAttr = detachedAttr()
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
