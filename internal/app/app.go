// Package app wires all newscast subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until its context ends, and Shutdown
// tears everything down in order. Generate runs a single job in the
// foreground for the command line.
//
// For testing, inject doubles via functional options (WithStore,
// WithSink, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/newscast/internal/api"
	"github.com/MrWong99/newscast/internal/config"
	"github.com/MrWong99/newscast/internal/events"
	"github.com/MrWong99/newscast/internal/generation"
	"github.com/MrWong99/newscast/internal/health"
	"github.com/MrWong99/newscast/internal/observe"
	"github.com/MrWong99/newscast/pkg/audio"
	"github.com/MrWong99/newscast/pkg/fetch"
	"github.com/MrWong99/newscast/pkg/provider/llm"
	"github.com/MrWong99/newscast/pkg/provider/podcast"
	"github.com/MrWong99/newscast/pkg/provider/tts"
	"github.com/MrWong99/newscast/pkg/script"
	"github.com/MrWong99/newscast/pkg/store"
	"github.com/MrWong99/newscast/pkg/store/postgres"
	"github.com/MrWong99/newscast/pkg/store/sqlite"
)

// sourceTimeout bounds a single HTTP source download.
const sourceTimeout = 30 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM     llm.Provider
	TTS     tts.Provider
	Podcast podcast.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store          store.Store
	sink           generation.SnapshotSink
	publisher      *events.Publisher
	fetcher        generation.Fetcher
	metrics        *observe.Metrics
	metricsHandler http.Handler
	manager        *generation.Manager
	api            *api.Server
	httpServer     *http.Server

	level *slog.LevelVar
	log   *slog.Logger

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a podcast store instead of opening one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSink injects a snapshot sink instead of connecting to NATS.
func WithSink(s generation.SnapshotSink) Option {
	return func(a *App) { a.sink = s }
}

// WithFetcher replaces the concurrent source fetcher.
func WithFetcher(f generation.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithMetrics injects the metric instruments. Defaults to
// observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler overrides the /metrics handler. Defaults to promhttp.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevel hands the app the level variable backing the process logger so
// that log_level changes take effect on reload.
func WithLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: storage connection, event
// publisher, generation manager and HTTP API.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Podcast store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Event publisher ───────────────────────────────────────────────
	if err := a.initEvents(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init events: %w", err)
	}

	// ── 3. Generation manager ────────────────────────────────────────────
	a.initManager()

	// ── 4. HTTP API ──────────────────────────────────────────────────────
	a.initAPI()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured backend: PostgreSQL, SQLite, or memory.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	switch st := a.cfg.Storage; {
	case st.PostgresDSN != "":
		pg, err := postgres.NewStore(ctx, st.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = pg
		a.closers = append(a.closers, pg.Close)
		a.log.Info("podcast store ready", "backend", "postgres")
	case st.SQLitePath != "":
		lite, err := sqlite.Open(ctx, st.SQLitePath)
		if err != nil {
			return err
		}
		a.store = lite
		a.closers = append(a.closers, lite.Close)
		a.log.Info("podcast store ready", "backend", "sqlite", "path", st.SQLitePath)
	default:
		a.store = store.NewMemStore()
		a.log.Warn("no storage configured; podcasts are kept in memory only")
	}
	return nil
}

// initEvents connects the NATS publisher when events.nats_url is set.
func (a *App) initEvents() error {
	if a.sink != nil || a.cfg.Events.NATSURL == "" {
		return nil
	}
	pub, err := events.Connect(a.cfg.Events.NATSURL, a.cfg.Events.Subject, events.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.publisher = pub
	a.sink = pub
	a.closers = append(a.closers, pub.Close)
	return nil
}

func (a *App) initManager() {
	gen := a.cfg.Generation
	if a.fetcher == nil {
		a.fetcher = fetch.NewGroup(
			fetch.WithConcurrency(gen.FetchConcurrency),
			fetch.WithLogger(a.log),
		)
	}

	var writer script.Writer
	if a.providers.LLM != nil {
		writer = script.NewLLMWriter(a.providers.LLM)
	}

	a.manager = generation.NewManager(generation.ManagerConfig{
		Fetcher:    a.fetcher,
		Writer:     writer,
		TTS:        a.providers.TTS,
		Podcast:    a.providers.Podcast,
		Integrated: gen.Integrated,
		Store:      a.store,
		OutputDir:  gen.OutputDir,
		Format:     outputFormat(a.providers.TTS),
		Voices:     voicesFromConfig(gen),
		Prompt: script.PromptOptions{
			TargetMinutes:      gen.Prompt.TargetMinutes,
			MaxArticles:        gen.Prompt.MaxArticles,
			MaxCharsPerArticle: gen.Prompt.MaxCharsPerArticle,
			Language:           gen.Prompt.Language,
		},
		JobTimeout: gen.Timeouts.Job,
		Sink:       a.sink,
		Metrics:    a.metrics,
		Logger:     a.log,
	})
	a.manager.SetTopics(TopicsFromConfig(a.cfg.Topics))
	a.log.Info("generation manager ready",
		"strategy", a.manager.Strategy(),
		"topics", len(a.cfg.Topics),
		"output_dir", gen.OutputDir,
	)
}

func (a *App) initAPI() {
	checks := []health.Checker{health.PingCheck("store", a.store)}
	if a.publisher != nil {
		checks = append(checks, health.StatusCheck("events", a.publisher.Healthy))
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	opts := []api.Option{
		api.WithHealth(health.New(checks...)),
		api.WithMetricsHandler(a.metricsHandler),
		api.WithMetrics(a.metrics),
		api.WithLogger(a.log),
	}
	if a.providers.TTS != nil {
		opts = append(opts, api.WithVoices(a.providers.TTS))
	}
	a.api = api.NewServer(a.manager, a.store, opts...)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Manager returns the generation manager.
func (a *App) Manager() *generation.Manager { return a.manager }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.api }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API on server.listen_addr and blocks until ctx is
// cancelled or the listener fails. When ctx is done, Run returns
// context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.httpServer = &http.Server{
		Handler:           a.api,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Serve(ln)
	}()

	a.log.Info("app running", "addr", ln.Addr().String())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve http: %w", err)
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of next: topics, voices and the log
// level. Running jobs keep the settings they started with. It has the
// signature of config.ReloadFunc.
func (a *App) Reload(prev, next *config.Config) {
	d := config.Diff(prev, next)

	if d.TopicsChanged {
		a.manager.SetTopics(TopicsFromConfig(next.Topics))
		for _, tc := range d.TopicChanges {
			a.log.Info("topic reloaded",
				"topic", tc.Name,
				"added", tc.Added,
				"removed", tc.Removed,
				"sources_changed", tc.SourcesChanged,
			)
		}
	}
	if d.VoicesChanged {
		a.manager.SetVoices(voicesFromConfig(next.Generation))
		a.log.Info("voices reloaded", "a", next.Generation.Voices.A, "b", next.Generation.Voices.B)
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, cancels running jobs, and closes the
// remaining subsystems in init order. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(ctx); err != nil {
				a.log.Warn("http server shutdown error", "err", err)
			}
		}
		if err := a.manager.Close(ctx); err != nil {
			a.log.Warn("generation manager did not stop in time", "err", err)
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers collected so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// TopicsFromConfig builds generation topics with concrete fetch sources.
func TopicsFromConfig(tcs []config.TopicConfig) []generation.Topic {
	client := &http.Client{Timeout: sourceTimeout}
	topics := make([]generation.Topic, 0, len(tcs))
	for _, tc := range tcs {
		t := generation.Topic{Name: tc.Name, Title: tc.Title}
		for _, sc := range tc.Sources {
			switch sc.Type {
			case config.SourceFile:
				t.Sources = append(t.Sources, fetch.FileSource{Label: sc.Name, Path: sc.Path})
			case config.SourceHTTP:
				header := make(http.Header, len(sc.Headers))
				for k, v := range sc.Headers {
					header.Set(k, v)
				}
				t.Sources = append(t.Sources, &fetch.HTTPSource{
					Label:  sc.Name,
					URL:    sc.URL,
					Header: header,
					Client: client,
				})
			}
		}
		topics = append(topics, t)
	}
	return topics
}

// SlogLevel converts a config.LogLevel to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func voicesFromConfig(gen config.GenerationConfig) generation.Voices {
	return generation.Voices{
		A:           gen.Voices.A,
		B:           gen.Voices.B,
		SpeedFactor: gen.SpeedFactor,
	}
}

// outputFormat matches the merged file to the TTS provider's native format
// when it reports one, so stepwise jobs never resample.
func outputFormat(p tts.Provider) audio.Format {
	if f, ok := p.(interface{ Format() audio.Format }); ok {
		return f.Format()
	}
	return audio.DefaultFormat
}
