// Package volcengine implements tts.Provider on top of the Volcengine (Doubao)
// bidirectional streaming TTS service.
//
// Every utterance runs one full connection lifecycle
// (connect → start session → send text → finish → disconnect) on its own
// WebSocket. Connections are never multiplexed, so a failing utterance cannot
// corrupt another's audio. Audio is requested as raw PCM.
package volcengine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/newscast/pkg/audio"
	"github.com/MrWong99/newscast/pkg/provider/tts"
	"github.com/MrWong99/newscast/pkg/types"
	"github.com/MrWong99/newscast/pkg/wire"
)

const (
	// DefaultEndpoint is the bidirectional TTS WebSocket endpoint.
	DefaultEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/bidirection"

	defaultSampleRate = 24000
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithEndpoint overrides the WebSocket endpoint. Primarily used in tests.
func WithEndpoint(url string) Option {
	return func(p *Provider) { p.endpoint = url }
}

// WithResourceID selects the backend model. Defaults to ResourceSeedTTS1.
func WithResourceID(id string) Option {
	return func(p *Provider) { p.resourceID = id }
}

// WithSampleRate sets the requested PCM sample rate. Defaults to 24000.
func WithSampleRate(hz int) Option {
	return func(p *Provider) { p.sampleRate = hz }
}

// WithTimeouts overrides the per-step timeouts. Zero fields keep defaults.
func WithTimeouts(t Timeouts) Option {
	return func(p *Provider) { p.timeouts = t }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d wire.Dialer) Option {
	return func(p *Provider) { p.dialer = d }
}

// WithUserID sets the uid reported in requests.
func WithUserID(uid string) Option {
	return func(p *Provider) { p.uid = uid }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements tts.Provider for the Volcengine bidirectional TTS API.
type Provider struct {
	appID      string
	accessKey  string
	endpoint   string
	resourceID string
	sampleRate int
	uid        string
	timeouts   Timeouts
	dialer     wire.Dialer
	log        *slog.Logger
}

// New creates a Provider. appID and accessKey are the console credentials;
// missing credentials are a types.ErrConfiguration.
func New(appID, accessKey string, opts ...Option) (*Provider, error) {
	if appID == "" || accessKey == "" {
		return nil, fmt.Errorf("volcengine: app id and access key are required: %w", types.ErrConfiguration)
	}
	p := &Provider{
		appID:      appID,
		accessKey:  accessKey,
		endpoint:   DefaultEndpoint,
		resourceID: ResourceSeedTTS1,
		sampleRate: defaultSampleRate,
		uid:        "newscast",
		dialer:     wire.WebSocketDialer{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	p.timeouts = p.timeouts.withDefaults()
	if p.sampleRate <= 0 {
		return nil, fmt.Errorf("volcengine: sample rate %d: %w", p.sampleRate, types.ErrConfiguration)
	}
	return p, nil
}

// ResourceID returns the configured model id.
func (p *Provider) ResourceID() string { return p.resourceID }

// Format returns the PCM format of clips produced by Synthesize.
func (p *Provider) Format() audio.Format {
	return audio.Format{SampleRate: p.sampleRate, Channels: 1}
}

// NewSession returns an idle Session bound to this provider's configuration.
func (p *Provider) NewSession() *Session {
	return &Session{
		dialer:     p.dialer,
		endpoint:   p.endpoint,
		header:     p.header(),
		resourceID: p.resourceID,
		uid:        p.uid,
		sampleRate: p.sampleRate,
		timeouts:   p.timeouts,
		log:        p.log,
	}
}

func (p *Provider) header() http.Header {
	h := http.Header{}
	h.Set("X-Api-App-Key", p.appID)
	h.Set("X-Api-Access-Key", p.accessKey)
	h.Set("X-Api-Resource-Id", p.resourceID)
	return h
}

// Synthesize implements tts.Provider. The voice is validated before any
// connection is opened.
func (p *Provider) Synthesize(ctx context.Context, unit types.DialogueUnit, voice tts.VoiceProfile) (audio.Clip, error) {
	if _, err := LookupVoice(p.resourceID, voice.ID); err != nil {
		return audio.Clip{}, err
	}

	start := time.Now()
	s := p.NewSession()
	pcm, err := p.run(ctx, s, unit, voice)
	if derr := s.Disconnect(ctx); derr != nil {
		// Audio is already complete at this point.
		p.log.Warn("volcengine: disconnect", "index", unit.Index, "err", derr)
	}
	if err != nil {
		return audio.Clip{}, err
	}

	p.log.Debug("volcengine: utterance synthesised",
		"index", unit.Index,
		"speaker", unit.Speaker.String(),
		"bytes", len(pcm),
		"elapsed", time.Since(start),
	)
	return audio.Clip{Data: pcm, Format: p.Format(), Container: audio.ContainerPCM}, nil
}

func (p *Provider) run(ctx context.Context, s *Session, unit types.DialogueUnit, voice tts.VoiceProfile) ([]byte, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	if err := s.StartSession(ctx, voice.ID, voice.SpeedFactor); err != nil {
		return nil, err
	}
	if err := s.SendText(ctx, unit); err != nil {
		return nil, err
	}
	return s.Finish(ctx)
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	return Voices(p.resourceID), nil
}

var _ tts.Provider = (*Provider)(nil)
