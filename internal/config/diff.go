package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: topics and their
// sources, generation voices and speed, and the log level. Provider, storage,
// and listener changes need a restart.
type ConfigDiff struct {
	TopicsChanged bool        // true if any topic was added, removed, or re-sourced
	TopicChanges  []TopicDiff // per-topic diffs, sorted by name

	VoicesChanged bool // generation.voices or generation.speed_factor changed

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists top-level sections whose changes were ignored.
	RestartRequired []string
}

// TopicDiff describes what changed for a single topic between two configs.
type TopicDiff struct {
	Name           string
	TitleChanged   bool
	SourcesChanged bool
	Added          bool
	Removed        bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Generation.Voices != new.Generation.Voices || old.Generation.SpeedFactor != new.Generation.SpeedFactor {
		d.VoicesChanged = true
	}

	oldTopics := make(map[string]TopicConfig, len(old.Topics))
	for _, t := range old.Topics {
		oldTopics[t.Name] = t
	}
	newTopics := make(map[string]TopicConfig, len(new.Topics))
	for _, t := range new.Topics {
		newTopics[t.Name] = t
	}

	names := slices.Sorted(maps.Keys(oldTopics))
	for name := range newTopics {
		if _, ok := oldTopics[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	for _, name := range names {
		o, inOld := oldTopics[name]
		n, inNew := newTopics[name]
		var td TopicDiff
		switch {
		case !inNew:
			td = TopicDiff{Name: name, Removed: true}
		case !inOld:
			td = TopicDiff{Name: name, Added: true}
		default:
			td = TopicDiff{
				Name:           name,
				TitleChanged:   o.Title != n.Title,
				SourcesChanged: !slices.EqualFunc(o.Sources, n.Sources, sourceEqual),
			}
			if !td.TitleChanged && !td.SourcesChanged {
				continue
			}
		}
		d.TopicChanges = append(d.TopicChanges, td)
		d.TopicsChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !providerEntryEqual(old.Providers.LLM, new.Providers.LLM) ||
		!providerEntryEqual(old.Providers.TTS, new.Providers.TTS) ||
		!providerEntryEqual(old.Providers.Podcast, new.Providers.Podcast) ||
		!slices.EqualFunc(old.Providers.LLMFallbacks, new.Providers.LLMFallbacks, providerEntryEqual) ||
		!slices.EqualFunc(old.Providers.TTSFallbacks, new.Providers.TTSFallbacks, providerEntryEqual) ||
		old.Providers.CircuitBreaker != new.Providers.CircuitBreaker {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Events != new.Events {
		d.RestartRequired = append(d.RestartRequired, "events")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func sourceEqual(a, b SourceConfig) bool {
	return a.Name == b.Name && a.Type == b.Type && a.Path == b.Path && a.URL == b.URL &&
		maps.Equal(a.Headers, b.Headers)
}

// providerEntryEqual compares the scalar fields of two entries. Options are
// compared by key set only.
func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return slices.Equal(slices.Sorted(maps.Keys(a.Options)), slices.Sorted(maps.Keys(b.Options)))
}
