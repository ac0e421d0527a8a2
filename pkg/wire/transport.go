package wire

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/MrWong99/newscast/pkg/types"
)

// DefaultReadLimit bounds a single inbound frame. Audio frames for one
// sentence comfortably fit.
const DefaultReadLimit = 16 << 20

// Conn is one open, message-oriented link carrying encoded frames.
//
// ReadFrame and WriteFrame may be called concurrently with each other but
// neither may be called concurrently with itself. Close unblocks pending reads.
type Conn interface {
	WriteFrame(ctx context.Context, frame []byte) error
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens Conns.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebSocketDialer dials binary WebSocket links.
type WebSocketDialer struct {
	// ReadLimit overrides DefaultReadLimit when positive.
	ReadLimit int64

	// HTTPClient is used for the upgrade request when non-nil.
	HTTPClient *http.Client
}

// Dial implements Dialer. Failures wrap types.ErrConnection.
func (d WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: d.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w: %w", url, types.ErrConnection, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	c.SetReadLimit(limit)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) WriteFrame(ctx context.Context, frame []byte) error {
	if err := w.c.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("wire: write: %w: %w", types.ErrConnection, err)
	}
	return nil
}

func (w *wsConn) ReadFrame(ctx context.Context) ([]byte, error) {
	typ, data, err := w.c.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("wire: read: %w: %w", types.ErrConnection, err)
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("wire: read: unexpected text message %q: %w", truncate(data, 64), types.ErrProtocol)
	}
	return data, nil
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "done")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Dialer = WebSocketDialer{}
