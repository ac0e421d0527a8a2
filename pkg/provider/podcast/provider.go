// Package podcast defines the Provider interface for integrated one-shot
// podcast services.
//
// An integrated service accepts raw source text plus two host voices and does
// the scripting and the synthesis itself, streaming status updates while it
// works and handing back one finished clip.
package podcast

import (
	"context"

	"github.com/MrWong99/newscast/pkg/audio"
)

// Request is one generation call.
type Request struct {
	// Text is the raw source material, typically the concatenated articles.
	Text string

	// VoiceA and VoiceB are the voice ids for host A and host B.
	VoiceA string
	VoiceB string
}

// Status is one progress report streamed by the service.
type Status struct {
	// Phase is the service-reported phase, e.g. "processing" or "completed".
	Phase string

	// Message is free-form status text; may be empty.
	Message string

	// Progress is the service's own completion estimate in [0, 1], or a
	// negative value when the service does not report one.
	Progress float64
}

// Provider is the abstraction over an integrated podcast backend.
type Provider interface {
	// Generate runs one complete generation. onStatus, when non-nil, is called
	// from the calling goroutine for every status update. On failure the
	// returned clip is empty.
	Generate(ctx context.Context, req Request, onStatus func(Status)) (audio.Clip, error)
}
