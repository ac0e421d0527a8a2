// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service and turns one dialogue unit
// into one playable clip. Providers that stream internally still hand back a
// complete clip: the pipeline synthesises utterances strictly one after the
// other and stitches the results.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/newscast/pkg/audio"
	"github.com/MrWong99/newscast/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders unit.Text in voice and returns the complete clip.
	//
	// The voice must belong to the provider's catalogue for its configured
	// model; otherwise Synthesize fails with types.ErrConfiguration before any
	// network activity. Partial audio is never returned: on any failure the
	// clip is empty. Synthesize does not retry.
	Synthesize(ctx context.Context, unit types.DialogueUnit, voice VoiceProfile) (audio.Clip, error)

	// ListVoices returns the voices usable with the provider's configured model.
	ListVoices(ctx context.Context) ([]Voice, error)
}
