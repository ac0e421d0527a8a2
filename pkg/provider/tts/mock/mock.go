// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled clips to the pipeline and to verify the
// order and voices of synthesis calls.
//
// Example:
//
//	p := &mock.Provider{Clip: audio.Clip{Data: pcm, Format: audio.DefaultFormat}}
//	clip, _ := p.Synthesize(ctx, unit, tts.VoiceProfile{ID: "v1"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/newscast/pkg/audio"
	"github.com/MrWong99/newscast/pkg/provider/tts"
	"github.com/MrWong99/newscast/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Ctx   context.Context
	Unit  types.DialogueUnit
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Clip is returned by Synthesize when SynthesizeFunc is nil.
	Clip audio.Clip

	// Err, if non-nil, is returned by Synthesize when SynthesizeFunc is nil.
	Err error

	// SynthesizeFunc, if set, computes the response for each call.
	SynthesizeFunc func(ctx context.Context, unit types.DialogueUnit, voice tts.VoiceProfile) (audio.Clip, error)

	Voices    []tts.Voice
	VoicesErr error

	// --- Call records ---

	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured response.
func (p *Provider) Synthesize(ctx context.Context, unit types.DialogueUnit, voice tts.VoiceProfile) (audio.Clip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Unit: unit, Voice: voice})
	fn, clip, err := p.SynthesizeFunc, p.Clip, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, unit, voice)
	}
	return clip, err
}

// ListVoices returns Voices, VoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, p.VoicesErr
}

// Calls returns a copy of the recorded Synthesize calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

var _ tts.Provider = (*Provider)(nil)
