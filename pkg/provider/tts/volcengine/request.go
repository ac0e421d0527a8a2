package volcengine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/MrWong99/newscast/pkg/types"
	"github.com/MrWong99/newscast/pkg/wire"
)

const namespace = "BidirectionalTTS"

// ── Outgoing payloads ─────────────────────────────────────────────────────────

type request struct {
	User      requestUser   `json:"user"`
	Event     wire.Event    `json:"event"`
	Namespace string        `json:"namespace"`
	ReqParams requestParams `json:"req_params"`
}

type requestUser struct {
	UID string `json:"uid"`
}

type requestParams struct {
	Text        string      `json:"text,omitempty"`
	Speaker     string      `json:"speaker"`
	AudioParams audioParams `json:"audio_params"`
}

type audioParams struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	SpeechRate int    `json:"speech_rate"`
}

func encodeRequest(event wire.Event, uid, speaker, text string, sampleRate int, speed float64) ([]byte, error) {
	b, err := json.Marshal(request{
		User:      requestUser{UID: uid},
		Event:     event,
		Namespace: namespace,
		ReqParams: requestParams{
			Text:    text,
			Speaker: speaker,
			AudioParams: audioParams{
				Format:     "pcm",
				SampleRate: sampleRate,
				SpeechRate: speechRate(speed),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("volcengine: encode %s: %w", event, err)
	}
	return b, nil
}

// speechRate maps a speed factor (1.0 = normal) onto the service's
// speech_rate scale, where 0 is normal, -50 is half speed and 100 is double.
func speechRate(speed float64) int {
	if speed <= 0 {
		speed = 1
	}
	r := int(math.Round((speed - 1) * 100))
	return max(-50, min(100, r))
}

// ── Incoming payloads ─────────────────────────────────────────────────────────

// failure is the body of ConnectionFailed / SessionFailed events.
type failure struct {
	StatusCode uint32 `json:"status_code"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

// remoteFailure converts a *Failed event into a *types.RemoteError.
func remoteFailure(f *wire.Frame) error {
	var body failure
	if err := json.Unmarshal(f.Payload, &body); err != nil {
		return &types.RemoteError{Message: fmt.Sprintf("%s: %s", f.Event, f.Payload)}
	}
	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	return &types.RemoteError{Code: body.StatusCode, Message: fmt.Sprintf("%s: %s", f.Event, msg)}
}
