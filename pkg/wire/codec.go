package wire

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/MrWong99/newscast/pkg/types"
)

// Encode serialises f in dialect d. Identical frames always encode to
// identical bytes.
func Encode(d Dialect, f *Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("wire: encode: nil frame: %w", types.ErrProtocol)
	}
	version := f.Version
	if version == 0 {
		version = ProtocolVersion
	}
	if version > 0x0f || f.Type > 0x0f || f.Flags > 0x0f || f.Serialization > 0x0f || f.Compression > 0x0f {
		return nil, fmt.Errorf("wire: encode: header field exceeds 4 bits: %w", types.ErrProtocol)
	}

	payload, err := compress(f.Compression, f.Payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	if uint64(len(payload)) > math.MaxUint32 || uint64(len(f.SessionID)) > math.MaxUint32 {
		return nil, fmt.Errorf("wire: encode: field too large: %w", types.ErrProtocol)
	}

	buf := make([]byte, 0, headerLen+12+len(f.SessionID)+len(payload))
	buf = append(buf,
		version<<4|headerWords,
		byte(f.Type)<<4|byte(f.Flags),
		byte(f.Serialization)<<4|byte(f.Compression),
		0,
	)

	switch buf[1] {
	case sentinelAudioOnly:
		buf = appendUint32(buf, uint32(f.Event))
		buf = appendBlob(buf, []byte(f.SessionID))
		buf = appendBlob(buf, payload)
		return buf, nil
	case sentinelError:
		buf = appendUint32(buf, f.ErrorCode)
		buf = appendBlob(buf, payload)
		return buf, nil
	}

	switch d {
	case DialectSession:
		buf = appendUint32(buf, uint32(f.Event))
		if f.Event.SessionScoped() {
			buf = appendBlob(buf, []byte(f.SessionID))
		}
	case DialectConnection:
		buf = appendBlob(buf, []byte(f.SessionID))
	default:
		return nil, fmt.Errorf("wire: encode: unknown %s: %w", d, types.ErrProtocol)
	}
	buf = appendBlob(buf, payload)
	return buf, nil
}

// Decode parses b as a frame of dialect d. Error frames are never returned as
// frames: they surface as a *types.RemoteError. Any truncation, trailing data,
// or unknown event code yields an error wrapping types.ErrProtocol.
func Decode(d Dialect, b []byte) (*Frame, error) {
	if len(b) < MinFrameSize {
		return nil, fmt.Errorf("wire: decode: %d bytes, need at least %d: %w", len(b), MinFrameSize, types.ErrProtocol)
	}

	f := &Frame{
		Version:       b[0] >> 4,
		Type:          MessageType(b[1] >> 4),
		Flags:         Flags(b[1] & 0x0f),
		Serialization: Serialization(b[2] >> 4),
		Compression:   Compression(b[2] & 0x0f),
	}
	r := reader{buf: b}
	hsize := int(b[0]&0x0f) * 4
	if hsize < headerLen {
		return nil, fmt.Errorf("wire: decode: header size %d: %w", hsize, types.ErrProtocol)
	}
	if err := r.skip(hsize); err != nil {
		return nil, fmt.Errorf("wire: decode header: %w", err)
	}

	switch b[1] {
	case sentinelError:
		return nil, decodeError(&r, f.Compression)
	case sentinelAudioOnly:
		if err := r.event(f); err != nil {
			return nil, err
		}
		if err := r.sessionID(f); err != nil {
			return nil, err
		}
	default:
		switch d {
		case DialectSession:
			if err := r.event(f); err != nil {
				return nil, err
			}
			if f.Event.SessionScoped() {
				if err := r.sessionID(f); err != nil {
					return nil, err
				}
			}
		case DialectConnection:
			if err := r.sessionID(f); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("wire: decode: unknown %s: %w", d, types.ErrProtocol)
		}
	}

	payload, err := r.blob()
	if err != nil {
		return nil, fmt.Errorf("wire: decode payload: %w", err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("wire: decode: %d trailing bytes: %w", r.remaining(), types.ErrProtocol)
	}
	if f.Payload, err = decompress(f.Compression, payload); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	return f, nil
}

// decodeError parses the body of an error frame into a *types.RemoteError.
func decodeError(r *reader, c Compression) error {
	code, err := r.uint32()
	if err != nil {
		return fmt.Errorf("wire: decode error code: %w", err)
	}
	payload, err := r.blob()
	if err != nil {
		return fmt.Errorf("wire: decode error payload: %w", err)
	}
	if payload, err = decompress(c, payload); err != nil {
		return fmt.Errorf("wire: decode error payload: %w", err)
	}
	return &types.RemoteError{Code: code, Message: errorMessage(payload)}
}

// errorMessage extracts a readable message from an error payload. The service
// sends {"error": "..."} but older deployments used "message".
func errorMessage(payload []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return string(payload)
	}
	if body.Error != "" {
		return body.Error
	}
	if body.Message != "" {
		return body.Message
	}
	return string(payload)
}

// ── Byte helpers ────────────────────────────────────────────────────────────

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendBlob(b, blob []byte) []byte {
	b = appendUint32(b, uint32(len(blob)))
	return append(b, blob...)
}

// reader walks a frame body. Every read is bounds-checked.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) skip(n int) error {
	if n < 0 || r.remaining() < n {
		return fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.off, r.remaining(), types.ErrProtocol)
	}
	r.off += n
	return nil
}

func (r *reader) uint32() (uint32, error) {
	start := r.off
	if err := r.skip(4); err != nil {
		return 0, err
	}
	b := r.buf[start:r.off]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (r *reader) blob() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.remaining()) {
		return nil, fmt.Errorf("length prefix %d exceeds %d remaining bytes: %w", n, r.remaining(), types.ErrProtocol)
	}
	start := r.off
	r.off += int(n)
	out := make([]byte, n)
	copy(out, r.buf[start:r.off])
	return out, nil
}

func (r *reader) event(f *Frame) error {
	v, err := r.uint32()
	if err != nil {
		return fmt.Errorf("wire: decode event: %w", err)
	}
	f.Event = Event(v)
	if !f.Event.Known() {
		return fmt.Errorf("wire: decode: unknown %s: %w", f.Event, types.ErrProtocol)
	}
	return nil
}

func (r *reader) sessionID(f *Frame) error {
	id, err := r.blob()
	if err != nil {
		return fmt.Errorf("wire: decode session id: %w", err)
	}
	f.SessionID = string(id)
	return nil
}

// ── Compression ─────────────────────────────────────────────────────────────

func compress(c Compression, p []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return p, nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(p); err != nil {
			return nil, fmt.Errorf("gzip payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip payload: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("compression %d: %w", c, types.ErrProtocol)
	}
}

func decompress(c Compression, p []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return p, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(p))
		if err != nil {
			return nil, fmt.Errorf("gunzip payload: %v: %w", err, types.ErrProtocol)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gunzip payload: %v: %w", err, types.ErrProtocol)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("compression %d: %w", c, types.ErrProtocol)
	}
}
