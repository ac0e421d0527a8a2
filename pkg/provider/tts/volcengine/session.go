package volcengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/newscast/pkg/types"
	"github.com/MrWong99/newscast/pkg/wire"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnectionOpen
	StateSessionStarting
	StateSessionActive
	StateFinishing
	StateClosed
	StateFailed
)

var stateNames = [...]string{"Idle", "Connecting", "ConnectionOpen", "SessionStarting", "SessionActive", "Finishing", "Closed", "Failed"}

// String returns the state name.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Timeouts bounds every blocking wait of a Session.
type Timeouts struct {
	// Connect bounds the wait for ConnectionStarted.
	Connect time.Duration

	// Session bounds the wait for SessionStarted.
	Session time.Duration

	// Finish bounds the silence between frames while collecting audio.
	Finish time.Duration

	// Disconnect bounds the wait for ConnectionFinished.
	Disconnect time.Duration
}

// DefaultTimeouts are used for any zero field.
var DefaultTimeouts = Timeouts{
	Connect:    10 * time.Second,
	Session:    10 * time.Second,
	Finish:     30 * time.Second,
	Disconnect: 5 * time.Second,
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = DefaultTimeouts.Connect
	}
	if t.Session <= 0 {
		t.Session = DefaultTimeouts.Session
	}
	if t.Finish <= 0 {
		t.Finish = DefaultTimeouts.Finish
	}
	if t.Disconnect <= 0 {
		t.Disconnect = DefaultTimeouts.Disconnect
	}
	return t
}

// inbound is one item produced by the receive loop.
type inbound struct {
	frame *wire.Frame
	err   error
}

// Session drives one connection through
// connect → start session → send text → finish → disconnect.
//
// A Session is used by one goroutine at a time; State may be read
// concurrently. A Session is not reusable after Disconnect.
type Session struct {
	dialer     wire.Dialer
	endpoint   string
	header     http.Header
	resourceID string
	uid        string
	sampleRate int
	timeouts   Timeouts
	log        *slog.Logger

	mu    sync.Mutex
	state State

	conn      wire.Conn
	frames    chan inbound
	loopDone  chan struct{}
	stopLoop  context.CancelFunc
	sessionID string
	voice     string
	speed     float64
	audio     []byte
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the id sent with StartSession, or "" before that.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	s.log.Debug("volcengine: session state", "from", prev.String(), "to", st.String())
}

// expect returns an error unless the session is in want.
func (s *Session) expect(op string, want State) error {
	if st := s.State(); st != want {
		return fmt.Errorf("volcengine: %s in state %s, want %s", op, st, want)
	}
	return nil
}

// fail moves the session to Failed, discards buffered audio, and returns err.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.audio = nil
	s.mu.Unlock()
	s.setState(StateFailed)
	return err
}

// ── Lifecycle ──────────────────────────────────────────────────────────────────

// Connect opens the transport, sends StartConnection, and waits for
// ConnectionStarted.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.expect("connect", StateIdle); err != nil {
		return err
	}
	s.setState(StateConnecting)

	header := s.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("X-Api-Connect-Id", uuid.NewString())

	conn, err := s.dialer.Dial(ctx, s.endpoint, header)
	if err != nil {
		if ctx.Err() != nil {
			return s.fail(cancelled(ctx))
		}
		return s.fail(fmt.Errorf("volcengine: connect: %w", wrapKind(err, types.ErrConnection)))
	}

	loopCtx, stop := context.WithCancel(context.Background())
	frames := make(chan inbound, 64)
	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.frames = frames
	s.loopDone = done
	s.stopLoop = stop
	s.mu.Unlock()
	go s.receiveLoop(loopCtx, conn, frames, done)

	if err := s.send(ctx, wire.NewEventFrame(wire.EventStartConnection, "", nil)); err != nil {
		return s.fail(fmt.Errorf("volcengine: connect: %w", err))
	}
	if err := s.wait(ctx, wire.EventConnectionStarted, s.timeouts.Connect, false, nil); err != nil {
		return s.fail(fmt.Errorf("volcengine: connect: %w", asConnectionError(err)))
	}
	s.setState(StateConnectionOpen)
	return nil
}

// StartSession validates voice against the catalogue for the configured
// resource id, then sends StartSession and waits for SessionStarted. An
// incompatible voice fails with types.ErrConfiguration without touching the
// network.
func (s *Session) StartSession(ctx context.Context, voice string, speed float64) error {
	if _, err := LookupVoice(s.resourceID, voice); err != nil {
		return s.fail(err)
	}
	if err := s.expect("start session", StateConnectionOpen); err != nil {
		return err
	}
	s.setState(StateSessionStarting)

	sid := uuid.NewString()
	s.mu.Lock()
	s.sessionID = sid
	s.mu.Unlock()

	payload, err := encodeRequest(wire.EventStartSession, s.uid, voice, "", s.sampleRate, speed)
	if err != nil {
		return s.fail(err)
	}
	if err := s.send(ctx, wire.NewEventFrame(wire.EventStartSession, sid, payload)); err != nil {
		return s.fail(fmt.Errorf("volcengine: start session: %w", err))
	}
	if err := s.wait(ctx, wire.EventSessionStarted, s.timeouts.Session, false, nil); err != nil {
		return s.fail(fmt.Errorf("volcengine: start session: %w", err))
	}

	s.mu.Lock()
	s.voice, s.speed = voice, speed
	s.mu.Unlock()
	s.setState(StateSessionActive)
	return nil
}

// SendText streams unit's text to the active session. It does not wait for
// any acknowledgement.
func (s *Session) SendText(ctx context.Context, unit types.DialogueUnit) error {
	if err := s.expect("send text", StateSessionActive); err != nil {
		return err
	}
	s.mu.Lock()
	sid, voice, speed := s.sessionID, s.voice, s.speed
	s.mu.Unlock()

	payload, err := encodeRequest(wire.EventTaskRequest, s.uid, voice, unit.Text, s.sampleRate, speed)
	if err != nil {
		return s.fail(err)
	}
	if err := s.send(ctx, wire.NewEventFrame(wire.EventTaskRequest, sid, payload)); err != nil {
		return s.fail(fmt.Errorf("volcengine: send text: %w", err))
	}
	return nil
}

// Finish sends FinishSession and collects audio until SessionFinished. Any
// error frame, failure event, or timeout fails the session and discards the
// buffered audio.
func (s *Session) Finish(ctx context.Context) ([]byte, error) {
	if err := s.expect("finish", StateSessionActive); err != nil {
		return nil, err
	}
	sid := s.SessionID()
	if err := s.send(ctx, wire.NewEventFrame(wire.EventFinishSession, sid, nil)); err != nil {
		return nil, s.fail(fmt.Errorf("volcengine: finish: %w", err))
	}
	s.setState(StateFinishing)

	err := s.wait(ctx, wire.EventSessionFinished, s.timeouts.Finish, true, func(f *wire.Frame) {
		switch f.Event {
		case wire.EventTTSResponse:
			if f.IsAudioOnly() || f.Serialization == wire.SerializationRaw {
				s.mu.Lock()
				s.audio = append(s.audio, f.Payload...)
				s.mu.Unlock()
			}
		case wire.EventTTSSentenceStart, wire.EventTTSSentenceEnd:
			s.log.Debug("volcengine: sentence boundary", "event", f.Event.String(), "session_id", sid)
		default:
			s.log.Debug("volcengine: ignoring frame while finishing", "event", f.Event.String())
		}
	})
	if err != nil {
		return nil, s.fail(fmt.Errorf("volcengine: finish: %w", err))
	}

	s.mu.Lock()
	out := s.audio
	s.audio = nil
	s.mu.Unlock()
	s.setState(StateConnectionOpen)
	return out, nil
}

// Disconnect sends FinishConnection and waits for ConnectionFinished, then
// closes the transport regardless of the outcome. The handshake is skipped
// when the session has failed or ctx is already done. The session always
// ends in Closed.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	conn, st := s.conn, s.state
	s.mu.Unlock()
	if conn == nil {
		s.setState(StateClosed)
		return nil
	}
	defer s.close()

	if st == StateFailed || st == StateClosed || ctx.Err() != nil {
		return nil
	}
	if err := s.send(ctx, wire.NewEventFrame(wire.EventFinishConnection, "", nil)); err != nil {
		return fmt.Errorf("volcengine: disconnect: %w", err)
	}
	if err := s.wait(ctx, wire.EventConnectionFinished, s.timeouts.Disconnect, false, nil); err != nil {
		return fmt.Errorf("volcengine: disconnect: %w", asConnectionError(err))
	}
	return nil
}

// close tears down the transport and the receive loop exactly once.
func (s *Session) close() {
	s.mu.Lock()
	conn, stop, done := s.conn, s.stopLoop, s.loopDone
	s.conn, s.stopLoop = nil, nil
	s.audio = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.log.Debug("volcengine: close transport", "err", err)
		}
	}
	if done != nil {
		<-done
	}
	s.setState(StateClosed)
}

// ── Frame I/O ──────────────────────────────────────────────────────────────────

func (s *Session) send(ctx context.Context, f *wire.Frame) error {
	b, err := wire.Encode(wire.DialectSession, f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("send %s: not connected: %w", f.Event, types.ErrConnection)
	}
	if err := conn.WriteFrame(ctx, b); err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}
		return fmt.Errorf("send %s: %w", f.Event, wrapKind(err, types.ErrConnection))
	}
	return nil
}

// receiveLoop decodes inbound frames from conn into frames until the
// transport fails or ctx is cancelled. It closes frames and done on exit.
func (s *Session) receiveLoop(ctx context.Context, conn wire.Conn, frames chan<- inbound, done chan<- struct{}) {
	defer close(done)
	defer close(frames)

	deliver := func(in inbound) bool {
		select {
		case frames <- in:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		b, err := conn.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				deliver(inbound{err: wrapKind(err, types.ErrConnection)})
			}
			return
		}
		f, err := wire.Decode(wire.DialectSession, b)
		if err == nil {
			s.log.Debug("volcengine: frame received", "event", f.Event.String(), "bytes", len(f.Payload))
		}
		if !deliver(inbound{frame: f, err: err}) {
			return
		}
	}
}

// wait blocks until a frame carrying want arrives. Other frames are passed to
// onFrame (if non-nil). With idle set, each such frame restarts the timeout so
// it bounds silence; otherwise timeout is a fixed deadline for the whole wait.
// Error frames, *Failed events, timeouts and ctx cancellation end the wait
// with an error.
func (s *Session) wait(ctx context.Context, want wire.Event, timeout time.Duration, idle bool, onFrame func(*wire.Frame)) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return cancelled(ctx)
		case <-timer.C:
			if idle {
				return fmt.Errorf("no frame for %s while waiting for %s: %w", timeout, want, types.ErrConnection)
			}
			return fmt.Errorf("timed out after %s waiting for %s: %w", timeout, want, types.ErrConnection)
		case in, ok := <-s.frames:
			if !ok {
				return fmt.Errorf("connection closed while waiting for %s: %w", want, types.ErrConnection)
			}
			if in.err != nil {
				return in.err
			}
			f := in.frame
			switch f.Event {
			case want:
				return nil
			case wire.EventConnectionFailed, wire.EventSessionFailed, wire.EventSessionCanceled:
				return remoteFailure(f)
			}
			if onFrame != nil {
				onFrame(f)
			} else {
				s.log.Debug("volcengine: unexpected frame", "event", f.Event.String(), "waiting_for", want.String())
			}
			if !idle {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		}
	}
}

// ── Error helpers ──────────────────────────────────────────────────────────────

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", types.ErrCancelled, context.Cause(ctx))
}

// wrapKind tags err with kind unless it already carries a taxonomy kind.
func wrapKind(err, kind error) error {
	for _, k := range []error{types.ErrConnection, types.ErrProtocol, types.ErrRemote, types.ErrCancelled, types.ErrConfiguration} {
		if errors.Is(err, k) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// asConnectionError keeps remote and cancellation kinds and tags the rest as
// connection failures.
func asConnectionError(err error) error {
	return wrapKind(err, types.ErrConnection)
}
