package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/healthcompass/internal/observe"
)

// Handler returns the operational HTTP surface: /metrics plus the health
// probes, wrapped in the tracing and latency middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	a.health.Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// Serve starts the operational HTTP listener on server.listen_addr in the
// background and registers its shutdown. It is a no-op when no address is
// configured. The bound address is returned so callers can use ":0".
func (a *App) Serve(ctx context.Context) (string, error) {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		return "", nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("app: listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	bound := ln.Addr().String()
	slog.Info("serving metrics and health probes", "addr", bound)
	return bound, nil
}
