package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource attribute keys describing the model backend.
const (
	AttrLLMProvider = attribute.Key("healthcompass.llm.provider")
	AttrLLMModel    = attribute.Key("healthcompass.llm.model")
)

// ProviderConfig describes the running process for telemetry.
type ProviderConfig struct {
	// ServiceName defaults to "healthcompass".
	ServiceName string

	// ServiceVersion defaults to the main module version from the build info.
	ServiceVersion string

	// LLMProvider and Model name the configured model backend. They are
	// attached to every metric series through the Prometheus target_info.
	LLMProvider string
	Model       string

	// Registerer receives the Prometheus collector. Defaults to
	// [prometheus.DefaultRegisterer], which /metrics serves.
	Registerer prometheus.Registerer

	// SpanLogger receives one debug record per finished span. Defaults to
	// [slog.Default] at the time the span ends.
	SpanLogger *slog.Logger
}

// InitProvider installs the global meter and tracer providers and returns a
// shutdown function that flushes them.
//
// Metrics go to Prometheus. Spans are not exported to a collector; each
// finished span is logged at debug level with its trace id, duration and
// status, so turn timings show up with log_level: debug.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	var expOpts []promexporter.Option
	if cfg.Registerer != nil {
		expOpts = append(expOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	promExp, err := promexporter.New(expOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(&spanLogger{logger: cfg.SpanLogger}),
	)
	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newResource(ctx context.Context, cfg ProviderConfig) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "healthcompass"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
		semconv.ServiceVersion(serviceVersion(cfg.ServiceVersion)),
	}
	if cfg.LLMProvider != "" {
		attrs = append(attrs, AttrLLMProvider.String(cfg.LLMProvider))
	}
	if cfg.Model != "" {
		attrs = append(attrs, AttrLLMModel.String(cfg.Model))
	}
	return resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
}

// serviceVersion prefers an explicit version, then the module version baked
// into the binary by go install, then "dev".
func serviceVersion(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "dev"
}

// spanLogger is an [sdktrace.SpanProcessor] that logs finished spans.
type spanLogger struct {
	logger *slog.Logger
}

var _ sdktrace.SpanProcessor = (*spanLogger)(nil)

func (p *spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *spanLogger) OnEnd(s sdktrace.ReadOnlySpan) {
	l := p.logger
	if l == nil {
		l = slog.Default()
	}
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	sc := s.SpanContext()
	args := []any{
		"span", s.Name(),
		"trace_id", sc.TraceID().String(),
		"duration", s.EndTime().Sub(s.StartTime()).Round(time.Microsecond),
	}
	if st := s.Status(); st.Code == codes.Error {
		args = append(args, "status", "error", "status_msg", st.Description)
	}
	for _, kv := range s.Attributes() {
		args = append(args, string(kv.Key), kv.Value.Emit())
	}
	l.Debug("span finished", args...)
}

func (p *spanLogger) Shutdown(context.Context) error   { return nil }
func (p *spanLogger) ForceFlush(context.Context) error { return nil }
