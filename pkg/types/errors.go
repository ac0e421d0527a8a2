package types

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer. Wrap them with fmt.Errorf("...: %w", ErrX)
// and classify with errors.Is.
var (
	// ErrConnection marks a transport or handshake failure, including timeouts
	// while establishing or closing a link.
	ErrConnection = errors.New("connection error")

	// ErrProtocol marks a malformed, truncated, or unexpected frame.
	ErrProtocol = errors.New("protocol error")

	// ErrRemote marks an explicit error reported by the remote service.
	ErrRemote = errors.New("remote error")

	// ErrConfiguration marks missing credentials or an invalid voice/resource pairing.
	ErrConfiguration = errors.New("configuration error")

	// ErrContent marks missing source content or an empty parsed script.
	ErrContent = errors.New("content error")

	// ErrCancelled marks a job cancelled by its caller.
	ErrCancelled = errors.New("cancelled")

	// ErrAudioProcessing marks a failure to assemble or export the merged asset.
	ErrAudioProcessing = errors.New("audio processing error")
)

// RemoteError carries the code and message of a server-side error frame.
// errors.Is(err, ErrRemote) reports true for any *RemoteError.
type RemoteError struct {
	Code    uint32
	Message string
}

// Error implements error.
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error %d", e.Code)
	}
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Is matches ErrRemote.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}

// Classify returns a short kind label for err, suitable for metric attributes
// and status text. Cancellation wins over every other kind.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrContent):
		return "content"
	case errors.Is(err, ErrRemote):
		return "remote"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrAudioProcessing):
		return "audio"
	default:
		return "internal"
	}
}
