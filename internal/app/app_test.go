package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/newscast/internal/app"
	"github.com/MrWong99/newscast/internal/config"
	"github.com/MrWong99/newscast/internal/generation"
	"github.com/MrWong99/newscast/internal/observe"
	"github.com/MrWong99/newscast/pkg/audio"
	"github.com/MrWong99/newscast/pkg/fetch"
	llmmock "github.com/MrWong99/newscast/pkg/provider/llm/mock"
	"github.com/MrWong99/newscast/pkg/provider/tts"
	ttsmock "github.com/MrWong99/newscast/pkg/provider/tts/mock"
	storemock "github.com/MrWong99/newscast/pkg/store/mock"
	"github.com/MrWong99/newscast/pkg/types"
)

const articlesJSON = `[
  {"title": "芯片出口新规", "content": "监管部门发布了新的出口规定。"},
  {"title": "开源模型发布", "content": "一家实验室开源了新模型。"}
]`

const testScript = "主播A：欢迎收听今天的科技早报。\n主播B：今天有两条新闻。\n"

// recordingSink collects published snapshots.
type recordingSink struct {
	mu    sync.Mutex
	snaps []generation.Snapshot
}

func (s *recordingSink) Publish(_ context.Context, snap generation.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func (s *recordingSink) stages() []generation.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]generation.Stage, len(s.snaps))
	for i, snap := range s.snaps {
		out[i] = snap.Stage
	}
	return out
}

// testConfig returns a config with one file-backed topic.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tech.json")
	if err := os.WriteFile(path, []byte(articlesJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Generation: config.GenerationConfig{
			OutputDir: filepath.Join(dir, "out"),
		},
		Topics: []config.TopicConfig{{
			Name:  "tech",
			Title: "科技早报",
			Sources: []config.SourceConfig{
				{Name: "local", Type: config.SourceFile, Path: path},
			},
		}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func testProviders(synth func(context.Context, types.DialogueUnit, tts.VoiceProfile) (audio.Clip, error)) *app.Providers {
	return &app.Providers{
		LLM: &llmmock.Provider{Script: testScript},
		TTS: &ttsmock.Provider{
			Clip:           audio.Clip{Data: make([]byte, 4800), Format: audio.DefaultFormat},
			SynthesizeFunc: synth,
		},
	}
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	opts = append([]app.Option{
		app.WithMetrics(m),
		app.WithMetricsHandler(http.NotFoundHandler()),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)

	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_WiresTopics(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t), testProviders(nil), app.WithStore(&storemock.Store{}))

	topics := a.Manager().Topics()
	if len(topics) != 1 || topics[0].Name != "tech" || len(topics[0].Sources) != 1 {
		t.Fatalf("topics = %+v", topics)
	}
	if got := a.Manager().Strategy(); got != generation.StrategyStepwise {
		t.Errorf("Strategy = %q, want stepwise", got)
	}
}

func TestNew_SQLiteStore(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "podcasts.db")
	a := newApp(t, cfg, testProviders(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	final, err := a.Generate(ctx, "tech", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := os.Stat(cfg.Storage.SQLitePath); err != nil {
		t.Errorf("sqlite file: %v", err)
	}
	if final.Podcast == nil || len(final.Podcast.Segments) != 2 {
		t.Errorf("podcast = %+v", final.Podcast)
	}
}

func TestNew_NilProviders(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t), nil, app.WithStore(&storemock.Store{}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := a.Generate(ctx, "tech", nil)
	if !errors.Is(err, app.ErrJobNotCompleted) {
		t.Fatalf("err = %v, want ErrJobNotCompleted", err)
	}
	if final.ErrKind != "configuration" {
		t.Errorf("ErrKind = %q, want configuration", final.ErrKind)
	}
}

// ── Generate ──────────────────────────────────────────────────────────────────

func TestGenerate_Completes(t *testing.T) {
	t.Parallel()
	st := &storemock.Store{}
	sink := &recordingSink{}
	a := newApp(t, testConfig(t), testProviders(nil), app.WithStore(st), app.WithSink(sink))

	var updates []generation.Snapshot
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	final, err := a.Generate(ctx, "tech", func(s generation.Snapshot) {
		updates = append(updates, s)
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if final.Stage != generation.StageCompleted || final.Progress != 1 {
		t.Errorf("final = %+v", final)
	}
	if len(updates) == 0 || !updates[len(updates)-1].Terminal() {
		t.Errorf("last update not terminal: %+v", updates)
	}
	if st.SavedCount() != 1 {
		t.Errorf("SavedCount = %d, want 1", st.SavedCount())
	}
	if _, err := os.Stat(final.Podcast.AudioPath); err != nil {
		t.Errorf("audio file: %v", err)
	}
	stages := sink.stages()
	if len(stages) == 0 || stages[len(stages)-1] != generation.StageCompleted {
		t.Errorf("sink stages = %v", stages)
	}
}

func TestGenerate_CancelledByContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	synth := func(jobCtx context.Context, _ types.DialogueUnit, _ tts.VoiceProfile) (audio.Clip, error) {
		cancel()
		<-jobCtx.Done()
		return audio.Clip{}, jobCtx.Err()
	}
	st := &storemock.Store{}
	a := newApp(t, testConfig(t), testProviders(synth), app.WithStore(st))

	final, err := a.Generate(ctx, "tech", nil)
	if !errors.Is(err, app.ErrJobNotCompleted) {
		t.Fatalf("err = %v, want ErrJobNotCompleted", err)
	}
	if final.Stage != generation.StageCancelled {
		t.Errorf("Stage = %q, want cancelled", final.Stage)
	}
	if st.SavedCount() != 0 {
		t.Errorf("SavedCount = %d, want 0", st.SavedCount())
	}
}

func TestGenerate_UnknownTopic(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t), testProviders(nil), app.WithStore(&storemock.Store{}))
	if _, err := a.Generate(context.Background(), "sports", nil); !errors.Is(err, generation.ErrUnknownTopic) {
		t.Errorf("err = %v, want ErrUnknownTopic", err)
	}
}

// ── Serve / Shutdown ──────────────────────────────────────────────────────────

func TestServe_ServesAPIUntilCancelled(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t), testProviders(nil), app.WithStore(&storemock.Store{}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	var resp *http.Response
	for range 50 {
		resp, err = http.Get(base + "/api/v1/topics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET topics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("topics status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

// ── Reload ────────────────────────────────────────────────────────────────────

func TestReload_AppliesTopicsVoicesAndLevel(t *testing.T) {
	t.Parallel()
	level := new(slog.LevelVar)
	prev := testConfig(t)
	a := newApp(t, prev, testProviders(nil), app.WithStore(&storemock.Store{}), app.WithLevel(level))

	next := *prev
	next.Server.LogLevel = config.LogDebug
	next.Generation.Voices.A = "zh_male_new"
	next.Topics = append([]config.TopicConfig{}, prev.Topics...)
	next.Topics = append(next.Topics, config.TopicConfig{
		Name:    "world",
		Title:   "world",
		Sources: []config.SourceConfig{{Type: config.SourceHTTP, URL: "https://example.com/world.json"}},
	})

	a.Reload(prev, &next)

	if got := len(a.Manager().Topics()); got != 2 {
		t.Errorf("topics = %d, want 2", got)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func TestTopicsFromConfig(t *testing.T) {
	t.Parallel()
	topics := app.TopicsFromConfig([]config.TopicConfig{{
		Name:  "tech",
		Title: "Tech",
		Sources: []config.SourceConfig{
			{Name: "disk", Type: config.SourceFile, Path: "/tmp/a.json"},
			{Type: config.SourceHTTP, URL: "https://example.com/a.json", Headers: map[string]string{"authorization": "Bearer x"}},
		},
	}})
	if len(topics) != 1 || len(topics[0].Sources) != 2 {
		t.Fatalf("topics = %+v", topics)
	}
	if fs, ok := topics[0].Sources[0].(fetch.FileSource); !ok || fs.Name() != "disk" {
		t.Errorf("source 0 = %#v", topics[0].Sources[0])
	}
	hs, ok := topics[0].Sources[1].(*fetch.HTTPSource)
	if !ok {
		t.Fatalf("source 1 = %#v", topics[0].Sources[1])
	}
	if hs.Header.Get("Authorization") != "Bearer x" || hs.Client == nil {
		t.Errorf("http source = %+v", hs)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := app.SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
