package volcengine

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/newscast/pkg/provider/tts"
	"github.com/MrWong99/newscast/pkg/types"
	"github.com/MrWong99/newscast/pkg/wire"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startTTSServer runs a WebSocket server that answers each decoded client
// frame with respond. The server is closed when the test finishes.
func startTTSServer(t *testing.T, respond func(f *wire.Frame) [][]byte, onHeader func(http.Header)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if onHeader != nil {
			onHeader(r.Header)
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary {
				return
			}
			f, err := wire.Decode(wire.DialectSession, data)
			if err != nil {
				return
			}
			for _, out := range respond(f) {
				if err := conn.Write(ctx, websocket.MessageBinary, out); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSynthesize_WebSocket(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		header http.Header
	)
	srv := startTTSServer(t, happyServer([]byte{0x10, 0x00}, []byte{0x20, 0x00}), func(h http.Header) {
		mu.Lock()
		header = h.Clone()
		mu.Unlock()
	})

	p, err := New("app-id", "secret",
		WithEndpoint(wsURL(srv)),
		WithResourceID(ResourceSeedTTS1),
		WithSampleRate(16000),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clip, err := p.Synthesize(ctx, unitA, tts.VoiceProfile{ID: testVoice, SpeedFactor: 1})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(clip.Data, []byte{0x10, 0x00, 0x20, 0x00}) {
		t.Errorf("clip.Data = %x", clip.Data)
	}
	if clip.Format.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", clip.Format.SampleRate)
	}

	mu.Lock()
	defer mu.Unlock()
	if header.Get("X-Api-App-Key") != "app-id" || header.Get("X-Api-Access-Key") != "secret" {
		t.Errorf("auth headers = %v", header)
	}
}

func TestSynthesize_WebSocketServerDrops(t *testing.T) {
	t.Parallel()

	// Accepts StartConnection, then hangs up.
	srv := startTTSServer(t, func(f *wire.Frame) [][]byte {
		return [][]byte{{0xde, 0xad}}
	}, nil)

	p, err := New("a", "k", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = p.Synthesize(ctx, unitA, tts.VoiceProfile{ID: testVoice})
	if !errors.Is(err, types.ErrProtocol) && !errors.Is(err, types.ErrConnection) {
		t.Fatalf("err = %v, want ErrProtocol or ErrConnection", err)
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	p, err := New("a", "k", WithResourceID(ResourceSeedTTS2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 4 {
		t.Errorf("got %d voices, want 4", len(voices))
	}
	for _, v := range voices {
		if !v.CompatibleWith(ResourceSeedTTS2) {
			t.Errorf("%s is not 2.0 compatible", v.ID)
		}
	}
}
