package volcengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/newscast/pkg/provider/podcast"
	"github.com/MrWong99/newscast/pkg/types"
	"github.com/MrWong99/newscast/pkg/wire"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func statusFrame(sid, body string) []byte {
	b, err := wire.Encode(wire.DialectConnection, &wire.Frame{
		Type: wire.FullServerResponse, Serialization: wire.SerializationJSON,
		SessionID: sid, Payload: []byte(body),
	})
	if err != nil {
		panic(err)
	}
	return b
}

func audioFrame(sid string, pcm []byte) []byte {
	b, err := wire.Encode(wire.DialectConnection, &wire.Frame{
		Type: wire.AudioOnlyServer, Flags: wire.WithEvent,
		Event: wire.EventTTSResponse, SessionID: sid, Payload: pcm,
	})
	if err != nil {
		panic(err)
	}
	return b
}

// startPodcastServer decodes the single request frame, hands it to script, and
// writes the returned frames. onRequest may capture the request.
func startPodcastServer(t *testing.T, script func(sid string) [][]byte, onRequest func(h http.Header, req generateRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		f, err := wire.Decode(wire.DialectConnection, data)
		if err != nil {
			return
		}
		var req generateRequest
		_ = json.Unmarshal(f.Payload, &req)
		if onRequest != nil {
			onRequest(r.Header, req)
		}
		for _, out := range script(f.SessionID) {
			if err := conn.Write(ctx, websocket.MessageBinary, out); err != nil {
				return
			}
		}
		// Wait for the client to hang up.
		_, _, _ = conn.Read(ctx)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testRequest() podcast.Request {
	return podcast.Request{Text: "今日新闻……", VoiceA: "zh_female_a", VoiceB: "zh_male_b"}
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		header http.Header
		got    generateRequest
	)
	srv := startPodcastServer(t, func(sid string) [][]byte {
		return [][]byte{
			statusFrame(sid, `{"status":"processing","message":"writing script","progress":0.1}`),
			audioFrame(sid, []byte{1, 0}),
			statusFrame(sid, `{"status":"processing","message":"synthesizing"}`),
			audioFrame(sid, []byte{2, 0, 3, 0}),
			statusFrame(sid, `{"status":"completed","progress":1}`),
		}
	}, func(h http.Header, req generateRequest) {
		mu.Lock()
		header, got = h.Clone(), req
		mu.Unlock()
	})

	p, err := New("app", "key", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var statuses []podcast.Status
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clip, err := p.Generate(ctx, testRequest(), func(s podcast.Status) { statuses = append(statuses, s) })
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.Equal(clip.Data, []byte{1, 0, 2, 0, 3, 0}) {
		t.Errorf("clip.Data = %v", clip.Data)
	}
	if len(statuses) != 3 {
		t.Fatalf("got %d statuses, want 3", len(statuses))
	}
	if statuses[0].Progress != 0.1 || statuses[1].Progress >= 0 || statuses[2].Phase != PhaseCompleted {
		t.Errorf("statuses = %+v", statuses)
	}

	mu.Lock()
	defer mu.Unlock()
	if header.Get("X-Api-Resource-Id") != DefaultResourceID || header.Get("X-Api-App-Key") != "app" {
		t.Errorf("headers = %v", header)
	}
	if got.InputText != "今日新闻……" || len(got.Speakers) != 2 || got.Speakers[1] != "zh_male_b" {
		t.Errorf("request = %+v", got)
	}
}

func TestGenerate_FailedStatus(t *testing.T) {
	t.Parallel()

	srv := startPodcastServer(t, func(sid string) [][]byte {
		return [][]byte{
			audioFrame(sid, []byte{1, 0}),
			statusFrame(sid, `{"status":"failed","message":"text too short","code":40000001}`),
		}
	}, nil)
	p, err := New("app", "key", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := p.Generate(context.Background(), testRequest(), nil)
	var re *types.RemoteError
	if !errors.As(err, &re) || re.Code != 40000001 {
		t.Fatalf("err = %v, want RemoteError 40000001", err)
	}
	if len(clip.Data) != 0 {
		t.Error("partial audio returned on failure")
	}
}

func TestGenerate_ErrorFrame(t *testing.T) {
	t.Parallel()

	srv := startPodcastServer(t, func(sid string) [][]byte {
		b, err := wire.Encode(wire.DialectConnection, &wire.Frame{
			Type: wire.ErrorInformation, Serialization: wire.SerializationJSON,
			ErrorCode: 55000000, Payload: []byte(`{"error":"internal"}`),
		})
		if err != nil {
			panic(err)
		}
		return [][]byte{b}
	}, nil)
	p, err := New("app", "key", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Generate(context.Background(), testRequest(), nil)
	if !errors.Is(err, types.ErrRemote) {
		t.Fatalf("err = %v, want ErrRemote", err)
	}
}

func TestGenerate_IdleTimeout(t *testing.T) {
	t.Parallel()

	srv := startPodcastServer(t, func(string) [][]byte { return nil }, nil)
	p, err := New("app", "key", WithEndpoint(wsURL(srv)), WithIdleTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Generate(context.Background(), testRequest(), nil)
	if !errors.Is(err, types.ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
}

func TestGenerate_Cancelled(t *testing.T) {
	t.Parallel()

	srv := startPodcastServer(t, func(sid string) [][]byte {
		return [][]byte{statusFrame(sid, `{"status":"processing"}`)}
	}, nil)
	p, err := New("app", "key", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err = p.Generate(ctx, testRequest(), func(podcast.Status) { cancel() })
	if !errors.Is(err, types.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestGenerate_InvalidInput(t *testing.T) {
	t.Parallel()

	p, err := New("app", "key", WithEndpoint("ws://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Generate(context.Background(), podcast.Request{VoiceA: "a", VoiceB: "b"}, nil); !errors.Is(err, types.ErrContent) {
		t.Errorf("empty text: err = %v, want ErrContent", err)
	}
	if _, err := p.Generate(context.Background(), podcast.Request{Text: "x", VoiceA: "a"}, nil); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("missing voice: err = %v, want ErrConfiguration", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Parallel()

	if _, err := New("", ""); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}
