package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	goaudio "github.com/go-audio/audio"
)

// FormatConverter brings clips from the synthesis service into the output
// format of a podcast. It warns once per converter about the first format
// mismatch and the first misaligned clip. Use one converter per batch; it is
// not safe for concurrent use.
type FormatConverter struct {
	Target Format
	Logger *slog.Logger

	mismatch sync.Once
	corrupt  sync.Once
}

func (c *FormatConverter) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Convert returns pcm, recorded in format from, in c.Target. Matching formats
// return pcm itself. Misaligned input returns nil.
func (c *FormatConverter) Convert(pcm []byte, from Format) []byte {
	if !from.Aligned(pcm) {
		c.corrupt.Do(func() {
			c.log().Warn("audio: dropping misaligned clip", "bytes", len(pcm), "format", from.String())
		})
		return nil
	}
	if from == c.Target {
		return pcm
	}
	c.mismatch.Do(func() {
		c.log().Warn("audio: clip format differs from output, converting", "from", from.String(), "to", c.Target.String())
	})

	// Interpolate whichever side has fewer channels.
	buf := intBuffer(pcm, from)
	if c.Target.Channels < from.Channels {
		buf = Resample(Remix(buf, c.Target.Channels), c.Target.SampleRate)
	} else {
		buf = Remix(Resample(buf, c.Target.SampleRate), c.Target.Channels)
	}
	return intsToPCM16(buf.Data, 16)
}

// Resample converts buf to rate with per-channel linear interpolation. The
// output has floor(frames*rate/srcRate) frames. buf is returned unchanged if
// the rates match or either rate is not positive.
func Resample(buf *goaudio.IntBuffer, rate int) *goaudio.IntBuffer {
	src := buf.Format.SampleRate
	if src == rate || src <= 0 || rate <= 0 {
		return buf
	}
	ch := buf.Format.NumChannels
	in := buf.NumFrames()
	n := int(int64(in) * int64(rate) / int64(src))
	out := make([]int, n*ch)
	step := float64(src) / float64(rate)

	for i := range n {
		pos := float64(i) * step
		k := int(pos)
		frac := pos - float64(k)
		next := min(k+1, in-1)
		for c := range ch {
			a, b := buf.Data[k*ch+c], buf.Data[next*ch+c]
			out[i*ch+c] = a + int(math.Round(frac*float64(b-a)))
		}
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: ch, SampleRate: rate},
		Data:           out,
		SourceBitDepth: buf.SourceBitDepth,
	}
}

// Remix changes the channel count of buf. Downmixing averages all source
// channels; upmixing copies the last source channel into the new ones, so
// mono becomes identical left and right.
func Remix(buf *goaudio.IntBuffer, channels int) *goaudio.IntBuffer {
	ch := buf.Format.NumChannels
	if ch == channels || ch <= 0 || channels <= 0 {
		return buf
	}
	frames := buf.NumFrames()
	out := make([]int, frames*channels)
	for f := range frames {
		frame := buf.Data[f*ch : (f+1)*ch]
		if channels == 1 {
			sum := 0
			for _, s := range frame {
				sum += s
			}
			out[f] = sum / ch
			continue
		}
		for c := range channels {
			out[f*channels+c] = frame[min(c, ch-1)]
		}
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: buf.Format.SampleRate},
		Data:           out,
		SourceBitDepth: buf.SourceBitDepth,
	}
}

func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
