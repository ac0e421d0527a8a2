package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/newscast/internal/config"
	"github.com/MrWong99/newscast/internal/generation"
	"github.com/MrWong99/newscast/internal/resilience"
	"github.com/MrWong99/newscast/pkg/types"
)

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, config.TimeoutsConfig{})

	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM: config.ProviderEntry{Name: "openai", APIKey: "sk-test", Model: "gpt-4o"},
		TTS: config.ProviderEntry{
			Name:    "volcengine",
			APIKey:  "access",
			Model:   "seed-tts-2.0",
			Options: map[string]any{"app_id": "12345", "sample_rate": 16000},
		},
		Podcast:      config.ProviderEntry{Name: "not-a-provider"},
		LLMFallbacks: []config.ProviderEntry{{Name: "doubao", APIKey: "ark-key", Model: "doubao-pro"}},
		TTSFallbacks: []config.ProviderEntry{{
			Name:    "volcengine",
			APIKey:  "access",
			Model:   "seed-tts-1.0",
			Options: map[string]any{"app_id": "12345"},
		}},
	}}
	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.LLM == nil || ps.TTS == nil {
		t.Errorf("providers = %+v, want LLM and TTS", ps)
	}
	if _, ok := ps.LLM.(*resilience.LLMFallback); !ok {
		t.Errorf("LLM = %T, want *resilience.LLMFallback", ps.LLM)
	}
	if _, ok := ps.TTS.(*resilience.TTSFallback); !ok {
		t.Errorf("TTS = %T, want *resilience.TTSFallback", ps.TTS)
	}
	if ps.Podcast != nil {
		t.Errorf("unregistered podcast provider should be skipped, got %T", ps.Podcast)
	}
}

func TestBuildProviders_MissingCredentials(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, config.TimeoutsConfig{})

	cfg := &config.Config{Providers: config.ProvidersConfig{
		TTS: config.ProviderEntry{Name: "volcengine", APIKey: "access"},
	}}
	_, err := buildProviders(cfg, reg)
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestProgressLine(t *testing.T) {
	t.Parallel()
	got := progressLine(generation.Snapshot{
		Stage:      generation.StageSynthesizing,
		Progress:   0.75,
		StatusText: "Synthesizing 3/6",
	})
	if want := "[ 75%] synthesizing Synthesizing 3/6"; got != want {
		t.Errorf("progressLine = %q, want %q", got, want)
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	printStartupSummary(&buf, &config.Config{
		Server:     config.ServerConfig{ListenAddr: ":8080"},
		Generation: config.GenerationConfig{Integrated: true},
		Storage:    config.StorageConfig{SQLitePath: "/tmp/p.db"},
		Topics:     []config.TopicConfig{{Name: "tech"}},
	})
	out := buf.String()
	for _, want := range []string{"integrated", "sqlite", "(disabled)", ":8080"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
