package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/newscast/pkg/provider/llm"
	"github.com/MrWong99/newscast/pkg/provider/podcast"
	"github.com/MrWong99/newscast/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// exists for the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type P from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factoryTable is one provider kind's name → factory map.
type factoryTable[P any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]Factory[P]
}

func newFactoryTable[P any](kind string) *factoryTable[P] {
	return &factoryTable[P]{kind: kind, m: make(map[string]Factory[P])}
}

func (t *factoryTable[P]) register(name string, f Factory[P]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[name] = f
}

func (t *factoryTable[P]) create(entry ProviderEntry) (P, error) {
	t.mu.RLock()
	f, ok := t.m[entry.Name]
	t.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, t.kind, entry.Name)
	}
	return f(entry)
}

func (t *factoryTable[P]) names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.m))
}

// Registry maps provider names to factories for the LLM, TTS and integrated
// podcast kinds. It is safe for concurrent use. Registering a name twice
// replaces the earlier factory.
type Registry struct {
	llm     *factoryTable[llm.Provider]
	tts     *factoryTable[tts.Provider]
	podcast *factoryTable[podcast.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:     newFactoryTable[llm.Provider]("llm"),
		tts:     newFactoryTable[tts.Provider]("tts"),
		podcast: newFactoryTable[podcast.Provider]("podcast"),
	}
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) { r.llm.register(name, f) }
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) { r.tts.register(name, f) }
func (r *Registry) RegisterPodcast(name string, f Factory[podcast.Provider]) {
	r.podcast.register(name, f)
}

// CreateLLM builds the LLM provider registered under entry.Name, or returns
// an error wrapping [ErrProviderNotRegistered].
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) { return r.llm.create(entry) }

// CreateTTS builds the TTS provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) { return r.tts.create(entry) }

// CreatePodcast builds the integrated podcast provider registered under
// entry.Name.
func (r *Registry) CreatePodcast(entry ProviderEntry) (podcast.Provider, error) {
	return r.podcast.create(entry)
}

// Names returns the sorted provider names registered for kind ("llm", "tts"
// or "podcast"). Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	switch kind {
	case "llm":
		return r.llm.names()
	case "tts":
		return r.tts.names()
	case "podcast":
		return r.podcast.names()
	}
	return nil
}
