// Package volcengine implements podcast.Provider on top of the Volcengine
// integrated podcast service.
//
// The service speaks the connection dialect of the binary frame protocol: the
// client sends one request frame, and the server streams JSON status frames
// interleaved with audio-only frames until it reports "completed" or "failed".
package volcengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/newscast/pkg/audio"
	"github.com/MrWong99/newscast/pkg/provider/podcast"
	"github.com/MrWong99/newscast/pkg/types"
	"github.com/MrWong99/newscast/pkg/wire"
)

const (
	// DefaultEndpoint is the integrated podcast WebSocket endpoint.
	DefaultEndpoint = "wss://openspeech.bytedance.com/api/v3/sami/podcasttts"

	// DefaultResourceID selects the integrated podcast model.
	DefaultResourceID = "volc.service_type.10050"

	// DefaultIdleTimeout bounds the silence between two server frames.
	DefaultIdleTimeout = 60 * time.Second

	defaultSampleRate = 24000
)

// Status phases reported by the service.
const (
	PhaseProcessing = "processing"
	PhaseCompleted  = "completed"
	PhaseFailed     = "failed"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithEndpoint overrides the WebSocket endpoint.
func WithEndpoint(url string) Option {
	return func(p *Provider) { p.endpoint = url }
}

// WithResourceID overrides DefaultResourceID.
func WithResourceID(id string) Option {
	return func(p *Provider) { p.resourceID = id }
}

// WithSampleRate sets the requested PCM sample rate. Defaults to 24000.
func WithSampleRate(hz int) Option {
	return func(p *Provider) { p.sampleRate = hz }
}

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(p *Provider) { p.idleTimeout = d }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d wire.Dialer) Option {
	return func(p *Provider) { p.dialer = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// Provider implements podcast.Provider.
type Provider struct {
	appID       string
	accessKey   string
	endpoint    string
	resourceID  string
	sampleRate  int
	idleTimeout time.Duration
	dialer      wire.Dialer
	log         *slog.Logger
}

var _ podcast.Provider = (*Provider)(nil)

// New creates a Provider. Missing credentials are a types.ErrConfiguration.
func New(appID, accessKey string, opts ...Option) (*Provider, error) {
	if appID == "" || accessKey == "" {
		return nil, fmt.Errorf("volcengine podcast: app id and access key are required: %w", types.ErrConfiguration)
	}
	p := &Provider{
		appID:       appID,
		accessKey:   accessKey,
		endpoint:    DefaultEndpoint,
		resourceID:  DefaultResourceID,
		sampleRate:  defaultSampleRate,
		idleTimeout: DefaultIdleTimeout,
		dialer:      wire.WebSocketDialer{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.sampleRate <= 0 || p.idleTimeout <= 0 {
		return nil, fmt.Errorf("volcengine podcast: invalid sample rate or timeout: %w", types.ErrConfiguration)
	}
	return p, nil
}

// ── Payloads ───────────────────────────────────────────────────────────────────

type generateRequest struct {
	InputText   string   `json:"input_text"`
	Speakers    []string `json:"speakers"`
	AudioParams reqAudio `json:"audio_params"`
	User        reqUser  `json:"user"`
}

type reqAudio struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

type reqUser struct {
	UID string `json:"uid"`
}

type statusPayload struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Progress *float64 `json:"progress"`
	Code     uint32   `json:"code"`
}

// ── Generate ───────────────────────────────────────────────────────────────────

// Generate implements podcast.Provider. The transport is closed before
// Generate returns, whatever the outcome.
func (p *Provider) Generate(ctx context.Context, req podcast.Request, onStatus func(podcast.Status)) (audio.Clip, error) {
	if req.Text == "" {
		return audio.Clip{}, fmt.Errorf("volcengine podcast: empty input text: %w", types.ErrContent)
	}
	if req.VoiceA == "" || req.VoiceB == "" {
		return audio.Clip{}, fmt.Errorf("volcengine podcast: both host voices are required: %w", types.ErrConfiguration)
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", p.appID)
	header.Set("X-Api-Access-Key", p.accessKey)
	header.Set("X-Api-Resource-Id", p.resourceID)
	header.Set("X-Api-Connect-Id", uuid.NewString())

	conn, err := p.dialer.Dial(ctx, p.endpoint, header)
	if err != nil {
		if ctx.Err() != nil {
			return audio.Clip{}, cancelled(ctx)
		}
		return audio.Clip{}, fmt.Errorf("volcengine podcast: connect: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			p.log.Debug("volcengine podcast: close transport", "err", err)
		}
	}()

	sid := uuid.NewString()
	payload, err := json.Marshal(generateRequest{
		InputText:   req.Text,
		Speakers:    []string{req.VoiceA, req.VoiceB},
		AudioParams: reqAudio{Format: "pcm", SampleRate: p.sampleRate},
		User:        reqUser{UID: sid},
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("volcengine podcast: encode request: %w", err)
	}
	b, err := wire.Encode(wire.DialectConnection, wire.NewRequestFrame(sid, payload))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("volcengine podcast: %w", err)
	}
	if err := conn.WriteFrame(ctx, b); err != nil {
		if ctx.Err() != nil {
			return audio.Clip{}, cancelled(ctx)
		}
		return audio.Clip{}, fmt.Errorf("volcengine podcast: send request: %w", err)
	}

	pcm, err := p.collect(ctx, conn, onStatus)
	if err != nil {
		return audio.Clip{}, err
	}
	return audio.Clip{
		Data:      pcm,
		Format:    audio.Format{SampleRate: p.sampleRate, Channels: 1},
		Container: audio.ContainerPCM,
	}, nil
}

// collect reads frames until the service reports completion.
func (p *Provider) collect(ctx context.Context, conn wire.Conn, onStatus func(podcast.Status)) ([]byte, error) {
	var pcm []byte
	for {
		readCtx, cancel := context.WithTimeout(ctx, p.idleTimeout)
		b, err := conn.ReadFrame(readCtx)
		cancel()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil, cancelled(ctx)
			case errors.Is(err, context.DeadlineExceeded):
				return nil, fmt.Errorf("volcengine podcast: no frame for %s: %w", p.idleTimeout, types.ErrConnection)
			}
			return nil, fmt.Errorf("volcengine podcast: read: %w", err)
		}

		f, err := wire.Decode(wire.DialectConnection, b)
		if err != nil {
			return nil, fmt.Errorf("volcengine podcast: %w", err)
		}
		if f.IsAudioOnly() {
			pcm = append(pcm, f.Payload...)
			continue
		}

		var st statusPayload
		if err := f.JSON(&st); err != nil {
			return nil, fmt.Errorf("volcengine podcast: %w: %w", types.ErrProtocol, err)
		}
		status := podcast.Status{Phase: st.Status, Message: st.Message, Progress: -1}
		if st.Progress != nil {
			status.Progress = *st.Progress
		}
		p.log.Debug("volcengine podcast: status", "phase", status.Phase, "progress", status.Progress)
		if onStatus != nil {
			onStatus(status)
		}

		switch st.Status {
		case PhaseCompleted:
			return pcm, nil
		case PhaseFailed:
			return nil, fmt.Errorf("volcengine podcast: %w", &types.RemoteError{Code: st.Code, Message: st.Message})
		}
	}
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("volcengine podcast: %w: %w", types.ErrCancelled, context.Cause(ctx))
}
