package resilience

import (
	"context"

	"github.com/MrWong99/newscast/pkg/audio"
	"github.com/MrWong99/newscast/pkg/provider/tts"
	"github.com/MrWong99/newscast/pkg/types"
)

// TTSFallback implements [tts.Provider] with a circuit breaker per backend and
// failover between them. With a single backend it still fails fast while the
// breaker is open, so a job does not wait out connect timeouts utterance
// after utterance.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders unit on the first healthy provider.
func (f *TTSFallback) Synthesize(ctx context.Context, unit types.DialogueUnit, voice tts.VoiceProfile) (audio.Clip, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (audio.Clip, error) {
		return p.Synthesize(ctx, unit, voice)
	})
}

// ListVoices returns the catalogue of the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}

// Format reports the primary's output format when it exposes one, so the
// merged file keeps the provider's native rate.
func (f *TTSFallback) Format() audio.Format {
	if fp, ok := f.group.Primary().(interface{ Format() audio.Format }); ok {
		return fp.Format()
	}
	return audio.DefaultFormat
}
