package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [LoadFromReader] to unset fields.
const (
	DefaultListenAddr    = ":8080"
	DefaultOutputDir     = "output"
	DefaultEventsSubject = "newscast.jobs"
	DefaultServiceName   = "newscast"

	// Default host voices, both available on seed-tts-1.0 and the legacy model.
	DefaultVoiceA = "zh_female_cancan_mars_bigtts"
	DefaultVoiceB = "zh_male_wennuanahu_moon_bigtts"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":     {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "doubao"},
	"tts":     {"volcengine"},
	"podcast": {"volcengine"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and validates
// the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Generation.OutputDir == "" {
		cfg.Generation.OutputDir = DefaultOutputDir
	}
	if cfg.Generation.Voices.A == "" {
		cfg.Generation.Voices.A = DefaultVoiceA
	}
	if cfg.Generation.Voices.B == "" {
		cfg.Generation.Voices.B = DefaultVoiceB
	}
	if cfg.Generation.SpeedFactor == 0 {
		cfg.Generation.SpeedFactor = 1.0
	}
	if cfg.Generation.FetchConcurrency <= 0 {
		cfg.Generation.FetchConcurrency = 4
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = DefaultEventsSubject
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	for i := range cfg.Topics {
		if cfg.Topics[i].Title == "" {
			cfg.Topics[i].Title = cfg.Topics[i].Name
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. Problems
// that only degrade a job at run time are logged as warnings.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("podcast", cfg.Providers.Podcast.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	for i, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
		}
		validateProviderName("tts", fb.Name)
	}
	if cb := cfg.Providers.CircuitBreaker; cb.MaxFailures < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("providers.circuit_breaker values must not be negative"))
	}
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %v must be within [0, 1]", r))
	}

	// Strategy ↔ provider cross-validation. Missing providers fail the job at
	// the stage that needs them, so these are warnings.
	gen := cfg.Generation
	if gen.Integrated {
		if cfg.Providers.Podcast.Name == "" {
			slog.Warn("generation.integrated is set but providers.podcast is not configured; jobs will fail")
		}
	} else {
		if cfg.Providers.LLM.Name == "" {
			slog.Warn("providers.llm is not configured; jobs will fail at the scripting stage")
		}
		if cfg.Providers.TTS.Name == "" {
			slog.Warn("providers.tts is not configured; jobs will fail at the synthesis stage")
		}
	}

	// Generation
	if gen.Voices.A != "" && gen.Voices.A == gen.Voices.B {
		slog.Warn("both hosts use the same voice", "voice", gen.Voices.A)
	}
	if gen.SpeedFactor != 0 && (gen.SpeedFactor < 0.5 || gen.SpeedFactor > 2.0) {
		errs = append(errs, fmt.Errorf("generation.speed_factor %.2f is out of range [0.5, 2.0]", gen.SpeedFactor))
	}
	for name, d := range map[string]int64{
		"connect": int64(gen.Timeouts.Connect), "session": int64(gen.Timeouts.Session),
		"finish": int64(gen.Timeouts.Finish), "disconnect": int64(gen.Timeouts.Disconnect),
		"integrated": int64(gen.Timeouts.Integrated), "job": int64(gen.Timeouts.Job),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("generation.timeouts.%s must not be negative", name))
		}
	}

	// Storage
	if cfg.Storage.PostgresDSN != "" && cfg.Storage.SQLitePath != "" {
		errs = append(errs, errors.New("storage: postgres_dsn and sqlite_path are mutually exclusive"))
	}
	if cfg.Storage.PostgresDSN == "" && cfg.Storage.SQLitePath == "" {
		slog.Warn("no storage configured; podcasts are kept in memory only")
	}

	// Topics
	if len(cfg.Topics) == 0 {
		slog.Warn("no topics configured; no jobs can be started")
	}
	seen := make(map[string]int, len(cfg.Topics))
	for i, topic := range cfg.Topics {
		prefix := fmt.Sprintf("topics[%d]", i)
		if topic.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[topic.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of topics[%d]", prefix, topic.Name, prev))
			}
			seen[topic.Name] = i
		}
		if len(topic.Sources) == 0 {
			slog.Warn("topic has no sources; its jobs will fail with a content error", "topic", topic.Name)
		}
		for j, src := range topic.Sources {
			sp := fmt.Sprintf("%s.sources[%d]", prefix, j)
			if !src.Type.IsValid() {
				errs = append(errs, fmt.Errorf("%s.type %q is invalid; valid values: file, http", sp, src.Type))
				continue
			}
			if src.Type == SourceFile && src.Path == "" {
				errs = append(errs, fmt.Errorf("%s.path is required when type is file", sp))
			}
			if src.Type == SourceHTTP && src.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when type is http", sp))
			}
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
