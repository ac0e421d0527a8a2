// Command newscast serves the podcast generation API, or with -generate runs
// a single job in the foreground and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/newscast/internal/app"
	"github.com/MrWong99/newscast/internal/config"
	"github.com/MrWong99/newscast/internal/generation"
	"github.com/MrWong99/newscast/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	topic := flag.String("generate", "", "generate one podcast for `topic` now and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "newscast: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "newscast: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	logger := newLogger(cfg.Server.LogLevel, level)
	slog.SetDefault(logger)

	slog.Info("newscast starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Setup(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		SampleRatio:    cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Generation.Timeouts)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithLevel(level),
		app.WithMetricsHandler(tel.MetricsHandler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	code := 0
	if *topic != "" {
		code = generateOnce(ctx, application, *topic, os.Stdout)
	} else {
		code = serve(ctx, application, cfg, *configPath)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// serve runs the HTTP API with config hot reload until ctx is done.
func serve(ctx context.Context, application *app.App, cfg *config.Config, configPath string) int {
	watcher, err := config.NewWatcher(configPath, application.Reload)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go func() { _ = watcher.Run(ctx) }()
	}

	printStartupSummary(os.Stdout, cfg)
	slog.Info("server ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("shutdown signal received, stopping")
	return 0
}

// generateOnce runs one job in the foreground, printing a line whenever its
// stage or status text changes. SIGINT cancels the job. It returns a non-zero
// exit code unless the job completed.
func generateOnce(ctx context.Context, application *app.App, topic string, out io.Writer) int {
	var last generation.Snapshot
	final, err := application.Generate(ctx, topic, func(s generation.Snapshot) {
		if s.Stage == last.Stage && s.StatusText == last.StatusText {
			return
		}
		last = s
		fmt.Fprintln(out, progressLine(s))
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "newscast: %v\n", err)
		if errors.Is(err, generation.ErrUnknownTopic) || errors.Is(err, generation.ErrTopicBusy) {
			return 2
		}
		return 1
	}
	p := final.Podcast
	fmt.Fprintf(out, "podcast %s: %q, %.1fs, %d segments, audio at %s\n",
		final.PodcastID, p.Title, p.DurationSeconds, len(p.Segments), p.AudioPath)
	return 0
}

func progressLine(s generation.Snapshot) string {
	return fmt.Sprintf("[%3.0f%%] %-12s %s", s.Progress*100, s.Stage, s.StatusText)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	strategy := "stepwise"
	if cfg.Generation.Integrated {
		strategy = "integrated"
	}
	storage := "memory"
	switch {
	case cfg.Storage.PostgresDSN != "":
		storage = "postgres"
	case cfg.Storage.SQLitePath != "":
		storage = "sqlite"
	}
	events := "(disabled)"
	if cfg.Events.NATSURL != "" {
		events = "nats"
	}

	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║       Newscast startup summary        ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider(w, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider(w, "Podcast", cfg.Providers.Podcast.Name, cfg.Providers.Podcast.Model)
	fmt.Fprintf(w, "║  Strategy        : %-19s ║\n", strategy)
	fmt.Fprintf(w, "║  Topics          : %-19d ║\n", len(cfg.Topics))
	fmt.Fprintf(w, "║  Storage         : %-19s ║\n", storage)
	fmt.Fprintf(w, "║  Events          : %-19s ║\n", events)
	if cfg.Server.ListenAddr != "" {
		fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger returns a text logger on stderr whose level is held in lv, so it
// can change on config reload.
func newLogger(level config.LogLevel, lv *slog.LevelVar) *slog.Logger {
	lv.Set(app.SlogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
