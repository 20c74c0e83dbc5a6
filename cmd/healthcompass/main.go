// Command healthcompass is the entry point for the Health Compass personal
// health assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/healthcompass/internal/app"
	"github.com/MrWong99/healthcompass/internal/config"
	"github.com/MrWong99/healthcompass/internal/observe"
)

// defaultConfigPath is read when --config is not given. Its absence is not
// an error.
const defaultConfigPath = "healthcompass.yaml"

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	os.Exit(run())
}

func run() int {
	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "healthcompass: %v\n", err)
		}
		return 1
	}
	return 0
}

// ── Commands ──────────────────────────────────────────────────────────────────

type globalFlags struct {
	configPath string
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "healthcompass",
		Short: "Chat with a local health assistant",
		Long: `Health Compass is a conversational assistant for personal health metrics.

Log readings in plain language ("my blood pressure was 120/80 this morning"),
ask for history or statistics ("average weight this month"), attach lab
reports for an explanation, or ask general health questions. Answers come from
a local model server; metrics are stored in PostgreSQL or in memory.`,
		Args:          cobra.NoArgs,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, true, func(ctx context.Context, a *app.App) error {
				err := a.Run(ctx, in, out)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", defaultConfigPath, "path to the YAML configuration file")

	root.AddCommand(newAskCmd(flags, out), newDoctorCmd(flags, out))
	return root
}

func newAskCmd(flags *globalFlags, out io.Writer) *cobra.Command {
	var attach string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send a single message and print the reply",
		Long: `Run one conversation turn and exit.

With --attach the message is sent together with a PDF report, which is
explained instead of being classified.`,
		Example: `  healthcompass ask "log my weight 72.5 kg"
  healthcompass ask --attach blood-test.pdf "anything unusual here?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, false, func(ctx context.Context, a *app.App) error {
				if msg := a.InitModel(ctx); msg != "" && msg != app.MsgModelReady {
					fmt.Fprintln(cmd.ErrOrStderr(), msg)
				}
				reply, err := a.Ask(ctx, strings.Join(args, " "), attach)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&attach, "attach", "a", "", "path to a PDF report to send with the message")
	return cmd
}

func newDoctorCmd(flags *globalFlags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the model server and the metric store",
		Long: `Start the model server if needed, fetch the configured model, and probe
the metric store. Exits non-zero when any check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, false, func(ctx context.Context, a *app.App) error {
				if msg := a.InitModel(ctx); msg != "" {
					fmt.Fprintln(out, msg)
				}
				checks, ok := a.Doctor(ctx)
				names := make([]string, 0, len(checks))
				for name := range checks {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					fmt.Fprintf(out, "%-8s %s\n", name, checks[name])
				}
				if !ok {
					return errors.New("one or more checks failed")
				}
				return nil
			})
		},
	}
}

// withApp loads the configuration, builds the application and runs fn with
// it. serve starts the metrics and health listener when one is configured.
func withApp(cmd *cobra.Command, flags *globalFlags, serve bool, fn func(context.Context, *app.App) error) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(flags.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Server.LogLevel))
	slog.Debug("healthcompass starting",
		"config", flags.configPath,
		"provider", cfg.Providers.LLM.Name,
		"model", cfg.Providers.LLM.Model,
		"listen_addr", cfg.Server.ListenAddr,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		LLMProvider:    cfg.Providers.LLM.Name,
		Model:          cfg.Providers.LLM.Model,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	if serve {
		if _, err := application.Serve(ctx); err != nil {
			return err
		}
	}
	return fn(ctx, application)
}

// loadConfig reads path. A missing file falls back to defaults unless the
// path was given explicitly.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found", path)
	}
	return nil, err
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
