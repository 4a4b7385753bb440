package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/italolelis/bilidown/internal/config"
	"github.com/italolelis/bilidown/internal/logctx"
	"github.com/italolelis/bilidown/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bilidown:", err)
		os.Exit(1)
	}
}

// app is the process-wide state shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.Telemetry

	ctx    context.Context
	cancel context.CancelFunc
}

// bootstrap loads configuration, sets up logging and telemetry and returns a context that is
// cancelled on SIGINT or SIGTERM.
func bootstrap(parent context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg, logOut)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx = logctx.WithLogger(ctx, logger)

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		cancel()

		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger.Debug("bilidown starting", "version", version, "log_level", cfg.LogLevel, "telemetry", cfg.Telemetry.Enabled)

	return &app{cfg: cfg, logger: logger, telemetry: tel, ctx: ctx, cancel: cancel}, nil
}

func (a *app) Close() {
	defer a.cancel()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), shutdownTimeout)
	defer cancel()

	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown telemetry", "err", err)
	}
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.JSONLogs() {
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(logctx.NewTraceHandler(h))
}
