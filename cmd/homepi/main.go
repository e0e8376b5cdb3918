// Command homepi is the always-listening voice assistant daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/weny945/home-pi/internal/app"
	"github.com/weny945/home-pi/internal/config"
	"github.com/weny945/home-pi/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "homepi: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "homepi: %v\n", err)
		}
		return 1
	}

	// ── Verb dispatch ─────────────────────────────────────────────────────────
	switch verb := flag.Arg(0); verb {
	case "", "run":
		// fall through to the daemon below
	case "status":
		return cmdStatus(cfg)
	case "perf":
		return cmdPerf(cfg)
	case "logs":
		return cmdLogs(cfg)
	case "diag":
		return cmdDiag(cfg, *configPath)
	case "config":
		return cmdConfig(cfg, *configPath, flag.Args()[1:])
	default:
		fmt.Fprintf(os.Stderr, "homepi: unknown command %q (run, status, perf, logs, config, diag)\n", verb)
		return 2
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logRing := observe.NewLogRing(newLogger(cfg.LogLevel).Handler(), 0)
	slog.SetDefault(slog.New(logRing))

	slog.Info("homepi starting",
		"config", *configPath,
		"status_addr", cfg.StatusAddr,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.Telemetry(ctx, "homepi", version, nil)
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, app.WithLogRing(logRing))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("assistant ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		application.Shutdown()
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped by the build; "dev" for local builds.
var version = "dev"

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         homepi — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Wake words", fmt.Sprintf("%d configured", len(cfg.Wake.Keywords)))
	printEntry("STT local", orOff(cfg.STT.ModelPath != ""))
	printEntry("STT remote", orOff(cfg.STT.RemoteURL != ""))
	printEntry("LLM", valueOr(cfg.LLM.Model, "(not configured)"))
	printEntry("TTS local", orOff(cfg.TTS.Local.Enabled))
	printEntry("TTS remote", orOff(cfg.TTS.Remote.Enabled))
	printEntry("TTS streaming", orOff(cfg.TTS.Streaming.Enabled))
	printEntry("Music dir", valueOr(cfg.Music.Dir, "(disabled)"))
	printEntry("Barge-in", orOff(cfg.Wake.HardwareAEC))
	printEntry("Status addr", cfg.StatusAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", kind, value)
}

func orOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "(disabled)"
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
