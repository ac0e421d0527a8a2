// Package wire implements the binary framing used by the Volcengine speech
// services, in both of its dialects, plus a small transport abstraction so
// higher layers can be exercised without a network.
//
// Every frame starts with a 4-byte header:
//
//	byte0: version(4) | header size in 4-byte words(4)
//	byte1: message type(4) | flags(4)
//	byte2: serialization(4) | compression(4)
//	byte3: reserved
//
// All integers are big-endian. Two compact frame shapes are recognised by
// sentinel values in byte1 before any dialect-specific parsing takes place:
// 0xb4 carries raw audio and 0xf0 carries a server error.
package wire

import (
	"encoding/json"
	"fmt"
)

// MessageType is the high nibble of header byte1.
type MessageType uint8

const (
	FullClientRequest  MessageType = 0x1
	AudioOnlyClient    MessageType = 0x2
	FullServerResponse MessageType = 0x9
	AudioOnlyServer    MessageType = 0xB
	FrontEndResult     MessageType = 0xC
	ErrorInformation   MessageType = 0xF
)

// Flags is the low nibble of header byte1.
type Flags uint8

const (
	NoSequence       Flags = 0x0
	PositiveSequence Flags = 0x1
	LastNoSequence   Flags = 0x2
	NegativeSequence Flags = 0x3
	WithEvent        Flags = 0x4
)

// Serialization is the high nibble of header byte2.
type Serialization uint8

const (
	SerializationRaw  Serialization = 0x0
	SerializationJSON Serialization = 0x1
)

// Compression is the low nibble of header byte2.
type Compression uint8

const (
	CompressionNone Compression = 0x0
	CompressionGzip Compression = 0x1
)

const (
	// ProtocolVersion is written when a Frame leaves Version unset.
	ProtocolVersion uint8 = 0x1

	// headerWords is the header size this package emits, in 4-byte words.
	headerWords uint8 = 0x1

	headerLen = 4

	// MinFrameSize is the smallest frame any dialect can produce: a header
	// plus one length prefix.
	MinFrameSize = headerLen + 4

	sentinelAudioOnly = byte(AudioOnlyServer)<<4 | byte(WithEvent) // 0xb4
	sentinelError     = byte(ErrorInformation) << 4                // 0xf0
)

// Dialect selects the body layout that follows the header. The frames do not
// describe their own dialect; the caller knows which service it is talking to.
type Dialect int

const (
	// DialectConnection is used by the one-shot integrated service:
	// session id, then payload. There is no event code.
	DialectConnection Dialect = iota

	// DialectSession is used by the bidirectional streaming service:
	// event code, session id (session-scoped events only), then payload.
	DialectSession
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case DialectConnection:
		return "connection"
	case DialectSession:
		return "session"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// Frame is one logical protocol message. Payload always holds the
// uncompressed bytes; compression is applied by Encode and undone by Decode.
type Frame struct {
	Version       uint8
	Type          MessageType
	Flags         Flags
	Serialization Serialization
	Compression   Compression

	// Event is the event code. Zero for connection-dialect frames.
	Event Event

	// ErrorCode is only meaningful on error frames.
	ErrorCode uint32

	SessionID string
	Payload   []byte
}

// IsAudioOnly reports whether f uses the compact audio-only layout.
func (f *Frame) IsAudioOnly() bool {
	return f.Type == AudioOnlyServer && f.Flags == WithEvent
}

// JSON unmarshals the frame payload into v.
func (f *Frame) JSON(v any) error {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("wire: decode %s payload: %w", f.Event, err)
	}
	return nil
}

// NewEventFrame builds a session-dialect client request carrying event with
// a JSON payload. sessionID is ignored by Encode for connection-level events.
func NewEventFrame(event Event, sessionID string, payload []byte) *Frame {
	if payload == nil {
		payload = []byte("{}")
	}
	return &Frame{
		Version:       ProtocolVersion,
		Type:          FullClientRequest,
		Flags:         WithEvent,
		Serialization: SerializationJSON,
		Compression:   CompressionNone,
		Event:         event,
		SessionID:     sessionID,
		Payload:       payload,
	}
}

// NewRequestFrame builds a connection-dialect client request with a JSON payload.
func NewRequestFrame(sessionID string, payload []byte) *Frame {
	return &Frame{
		Version:       ProtocolVersion,
		Type:          FullClientRequest,
		Flags:         NoSequence,
		Serialization: SerializationJSON,
		Compression:   CompressionNone,
		SessionID:     sessionID,
		Payload:       payload,
	}
}
