package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/newscast/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Generation: config.GenerationConfig{
			Voices:      config.VoicesConfig{A: "va", B: "vb"},
			SpeedFactor: 1,
		},
		Topics: []config.TopicConfig{
			{Name: "tech", Title: "Tech", Sources: []config.SourceConfig{{Type: config.SourceFile, Path: "tech.json"}}},
			{Name: "world", Title: "World", Sources: []config.SourceConfig{{Type: config.SourceHTTP, URL: "https://w"}}},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.TopicsChanged || d.VoicesChanged || d.LogLevelChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	n := baseConfig()
	n.Server.LogLevel = config.LogDebug
	d := config.Diff(baseConfig(), n)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v", d)
	}
}

func TestDiff_VoicesChanged(t *testing.T) {
	t.Parallel()
	n := baseConfig()
	n.Generation.SpeedFactor = 1.1
	if d := config.Diff(baseConfig(), n); !d.VoicesChanged {
		t.Error("speed change not detected")
	}
	n = baseConfig()
	n.Generation.Voices.B = "other"
	if d := config.Diff(baseConfig(), n); !d.VoicesChanged {
		t.Error("voice change not detected")
	}
}

func TestDiff_Topics(t *testing.T) {
	t.Parallel()
	n := baseConfig()
	n.Topics[0].Sources[0].Path = "tech-v2.json"
	n.Topics = n.Topics[:1]
	n.Topics = append(n.Topics, config.TopicConfig{Name: "sports", Title: "Sports"})

	d := config.Diff(baseConfig(), n)
	if !d.TopicsChanged {
		t.Fatal("topics change not detected")
	}
	want := []config.TopicDiff{
		{Name: "sports", Added: true},
		{Name: "tech", SourcesChanged: true},
		{Name: "world", Removed: true},
	}
	if !slices.Equal(d.TopicChanges, want) {
		t.Errorf("TopicChanges = %+v, want %+v", d.TopicChanges, want)
	}
}

func TestDiff_SourceHeadersChanged(t *testing.T) {
	t.Parallel()
	n := baseConfig()
	n.Topics[1].Sources[0].Headers = map[string]string{"Authorization": "Bearer new"}
	d := config.Diff(baseConfig(), n)
	if len(d.TopicChanges) != 1 || !d.TopicChanges[0].SourcesChanged {
		t.Errorf("TopicChanges = %+v", d.TopicChanges)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	n := baseConfig()
	n.Server.ListenAddr = ":9999"
	n.Providers.TTS.Name = "volcengine"
	n.Storage.SQLitePath = "x.db"

	d := config.Diff(baseConfig(), n)
	for _, want := range []string{"server.listen_addr", "providers", "storage"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, want)
		}
	}
	if slices.Contains(d.RestartRequired, "events") {
		t.Error("events unchanged but reported")
	}
}
