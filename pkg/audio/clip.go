// Package audio holds the PCM plumbing of the pipeline: clip decoding, format
// conversion, and stitching per-utterance clips into one timestamped asset.
//
// All PCM in this package is signed 16-bit little-endian, interleaved.
package audio

import (
	"bytes"
	"errors"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Format describes the sample rate and channel count of 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat matches what the synthesis service streams by default.
var DefaultFormat = Format{SampleRate: 24000, Channels: 1}

// Valid reports whether f can be used for 16-bit PCM (mono or stereo).
func (f Format) Valid() bool {
	return f.SampleRate > 0 && (f.Channels == 1 || f.Channels == 2)
}

// FrameSize returns the byte size of one sample frame across all channels.
func (f Format) FrameSize() int {
	return 2 * f.Channels
}

// Aligned reports whether pcm holds a whole number of frames in format f.
func (f Format) Aligned(pcm []byte) bool {
	return f.Valid() && len(pcm)%f.FrameSize() == 0
}

// Frames returns the number of sample frames in pcm.
func (f Format) Frames(pcm []byte) int {
	if !f.Valid() {
		return 0
	}
	return len(pcm) / f.FrameSize()
}

// Seconds converts a frame count to seconds.
func (f Format) Seconds(frames int) float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(frames) / float64(f.SampleRate)
}

// String returns e.g. "24000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Container identifies how Clip.Data is packaged.
type Container int

const (
	// ContainerPCM is headerless PCM in Clip.Format.
	ContainerPCM Container = iota

	// ContainerWAV is a RIFF/WAVE file; Clip.Format is read from its header.
	ContainerWAV
)

// ErrInvalidClip is returned when a clip is empty or cannot be decoded.
var ErrInvalidClip = errors.New("audio: invalid clip")

// Clip is the synthesised audio for one utterance.
type Clip struct {
	Data      []byte
	Format    Format
	Container Container
}

// PCM returns the clip as raw 16-bit PCM together with its format.
// Empty, misaligned, or undecodable clips yield ErrInvalidClip.
func (c Clip) PCM() ([]byte, Format, error) {
	if len(c.Data) == 0 {
		return nil, Format{}, fmt.Errorf("%w: empty", ErrInvalidClip)
	}
	switch c.Container {
	case ContainerPCM:
		if !c.Format.Valid() {
			return nil, Format{}, fmt.Errorf("%w: unsupported format %s", ErrInvalidClip, c.Format)
		}
		if !c.Format.Aligned(c.Data) {
			return nil, Format{}, fmt.Errorf("%w: %d bytes is not a whole number of %s frames", ErrInvalidClip, len(c.Data), c.Format)
		}
		return c.Data, c.Format, nil
	case ContainerWAV:
		return decodeWAV(c.Data)
	default:
		return nil, Format{}, fmt.Errorf("%w: unknown container %d", ErrInvalidClip, c.Container)
	}
}

// Duration returns the playable length of the clip in seconds.
func (c Clip) Duration() (float64, error) {
	pcm, f, err := c.PCM()
	if err != nil {
		return 0, err
	}
	return f.Seconds(f.Frames(pcm)), nil
}

func decodeWAV(data []byte) ([]byte, Format, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, Format{}, fmt.Errorf("%w: not a valid WAV file", ErrInvalidClip)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("%w: decode WAV: %v", ErrInvalidClip, err)
	}
	f := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	if !f.Valid() {
		return nil, Format{}, fmt.Errorf("%w: unsupported WAV format %s", ErrInvalidClip, f)
	}
	pcm := intsToPCM16(buf.Data, int(dec.BitDepth))
	return pcm, f, nil
}

// intsToPCM16 packs decoded samples of the given bit depth into 16-bit PCM.
func intsToPCM16(samples []int, bitDepth int) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		switch bitDepth {
		case 8:
			s = (s - 128) << 8
		case 24:
			s >>= 8
		case 32:
			s >>= 16
		}
		v := int16(max(-32768, min(32767, s)))
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// pcm16ToInts unpacks 16-bit PCM into go-audio samples.
func pcm16ToInts(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
	}
	return out
}

// intBuffer wraps 16-bit PCM as a go-audio buffer.
func intBuffer(pcm []byte, f Format) *goaudio.IntBuffer {
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           pcm16ToInts(pcm),
		SourceBitDepth: 16,
	}
}
