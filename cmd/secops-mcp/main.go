// Command secops-mcp serves Google Security Operations tools over the Model
// Context Protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/secops-mcp/internal/app"
	"github.com/MrWong99/secops-mcp/internal/config"
	"github.com/MrWong99/secops-mcp/internal/observe"
)

// defaultConfigPath is read when present; its absence is not an error.
const defaultConfigPath = "secops-mcp.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print the server version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(config.DefaultServerVersion)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	load := config.LoadOptional
	if explicit {
		load = config.Load
	}
	cfg, err := load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "secops-mcp: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// stdout carries MCP frames; all diagnostics go to stderr.
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pcfg := observe.ProviderConfig{ServiceVersion: cfg.Server.Version}
	if cfg.Server.TraceSpans {
		pcfg.TraceWriter = os.Stderr
	}
	shutdownTelemetry, err := observe.InitProvider(ctx, pcfg)
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("secops-mcp starting",
		"version", cfg.Server.Version,
		"transport", cfg.Server.Transport,
		"listen_addr", cfg.Server.ListenAddr,
		"credential_source", cfg.Chronicle.Credentials.Source,
		"tools", application.ToolNames(),
	)

	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		slog.Error("run error", "err", runErr)
		return 1
	}
	return 0
}

// newLogger returns a text logger on stderr at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogInfo:
		lvl = slog.LevelInfo
	case config.LogWarn:
		lvl = slog.LevelWarn
	default:
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
