package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/newscast/internal/app"
	"github.com/MrWong99/newscast/internal/config"
	"github.com/MrWong99/newscast/internal/resilience"
	"github.com/MrWong99/newscast/pkg/provider/llm"
	"github.com/MrWong99/newscast/pkg/provider/llm/anyllm"
	"github.com/MrWong99/newscast/pkg/provider/llm/openai"
	"github.com/MrWong99/newscast/pkg/provider/podcast"
	podcastvolc "github.com/MrWong99/newscast/pkg/provider/podcast/volcengine"
	"github.com/MrWong99/newscast/pkg/provider/tts"
	ttsvolc "github.com/MrWong99/newscast/pkg/provider/tts/volcengine"
)

// arkBaseURL is the OpenAI-compatible endpoint of the Doubao models.
const arkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// llmTimeout bounds one streamed script request.
const llmTimeout = 5 * time.Minute

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry, timeouts config.TimeoutsConfig) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai and doubao use the official OpenAI SDK; doubao speaks the same
	// protocol on the Ark endpoint.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []openai.Option{openai.WithTimeout(llmTimeout)}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})
	reg.RegisterLLM("doubao", func(entry config.ProviderEntry) (llm.Provider, error) {
		base := entry.BaseURL
		if base == "" {
			base = arkBaseURL
		}
		return openai.New(entry.APIKey, entry.Model, openai.WithBaseURL(base), openai.WithTimeout(llmTimeout))
	})

	// The remaining vendors go through any-llm-go and share the same pattern:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	// api_key is the access key; options.app_id the console app id. The model
	// field selects the resource id.
	reg.RegisterTTS("volcengine", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []ttsvolc.Option{
			ttsvolc.WithTimeouts(ttsvolc.Timeouts{
				Connect:    timeouts.Connect,
				Session:    timeouts.Session,
				Finish:     timeouts.Finish,
				Disconnect: timeouts.Disconnect,
			}),
			ttsvolc.WithLogger(slog.Default()),
		}
		if entry.Model != "" {
			opts = append(opts, ttsvolc.WithResourceID(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsvolc.WithEndpoint(entry.BaseURL))
		}
		if hz := entry.OptionInt("sample_rate", 0); hz > 0 {
			opts = append(opts, ttsvolc.WithSampleRate(hz))
		}
		if uid := entry.OptionString("uid"); uid != "" {
			opts = append(opts, ttsvolc.WithUserID(uid))
		}
		return ttsvolc.New(entry.OptionString("app_id"), entry.APIKey, opts...)
	})

	// ── Podcast ───────────────────────────────────────────────────────────────

	reg.RegisterPodcast("volcengine", func(entry config.ProviderEntry) (podcast.Provider, error) {
		opts := []podcastvolc.Option{podcastvolc.WithLogger(slog.Default())}
		if timeouts.Integrated > 0 {
			opts = append(opts, podcastvolc.WithIdleTimeout(timeouts.Integrated))
		}
		if entry.Model != "" {
			opts = append(opts, podcastvolc.WithResourceID(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, podcastvolc.WithEndpoint(entry.BaseURL))
		}
		if hz := entry.OptionInt("sample_rate", 0); hz > 0 {
			opts = append(opts, podcastvolc.WithSampleRate(hz))
		}
		return podcastvolc.New(entry.OptionString("app_id"), entry.APIKey, opts...)
	})

	for _, kind := range []string{"llm", "tts", "podcast"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// The script LLM and the TTS provider are wrapped with circuit breakers and
// their configured fallbacks.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	fbCfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Providers.CircuitBreaker.MaxFailures,
		ResetTimeout: cfg.Providers.CircuitBreaker.ResetTimeout,
	}}

	primaryLLM, err := create("llm", cfg.Providers.LLM, reg.CreateLLM, reg.Names("llm"))
	if err != nil {
		return nil, err
	}
	if primaryLLM != nil {
		group := resilience.NewLLMFallback(primaryLLM, cfg.Providers.LLM.Name, fbCfg)
		for _, entry := range cfg.Providers.LLMFallbacks {
			fb, err := create("llm fallback", entry, reg.CreateLLM, reg.Names("llm"))
			if err != nil {
				return nil, err
			}
			if fb != nil {
				group.AddFallback(entry.Name, fb)
			}
		}
		ps.LLM = group
	}

	primaryTTS, err := create("tts", cfg.Providers.TTS, reg.CreateTTS, reg.Names("tts"))
	if err != nil {
		return nil, err
	}
	if primaryTTS != nil {
		group := resilience.NewTTSFallback(primaryTTS, providerLabel(cfg.Providers.TTS), fbCfg)
		for _, entry := range cfg.Providers.TTSFallbacks {
			fb, err := create("tts fallback", entry, reg.CreateTTS, reg.Names("tts"))
			if err != nil {
				return nil, err
			}
			if fb != nil {
				group.AddFallback(providerLabel(entry), fb)
			}
		}
		ps.TTS = group
	}

	if ps.Podcast, err = create("podcast", cfg.Providers.Podcast, reg.CreatePodcast, reg.Names("podcast")); err != nil {
		return nil, err
	}
	return ps, nil
}

// providerLabel names a provider in breaker logs, e.g. "volcengine/seed-tts-2.0".
func providerLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}

// create builds one provider slot. Unnamed slots stay nil; unregistered
// names are skipped with a log line so a typo does not stop the server.
func create[P any](kind string, entry config.ProviderEntry, factory func(config.ProviderEntry) (P, error), available []string) (P, error) {
	var zero P
	if entry.Name == "" {
		return zero, nil
	}
	p, err := factory(entry)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not registered; skipping", "kind", kind, "name", entry.Name, "available", available)
		return zero, nil
	case err != nil:
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}
