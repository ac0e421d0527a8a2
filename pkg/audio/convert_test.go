package audio_test

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"slices"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"

	"github.com/MrWong99/newscast/pkg/audio"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func samples16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func intBuf(rate, channels int, data ...int) *goaudio.IntBuffer {
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: rate, NumChannels: channels},
		Data:           data,
		SourceBitDepth: 16,
	}
}

func TestResample(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   *goaudio.IntBuffer
		rate int
		want []int
	}{
		{"same rate", intBuf(24000, 1, 1, 2, 3), 24000, []int{1, 2, 3}},
		{"zero target", intBuf(24000, 1, 1, 2, 3), 0, []int{1, 2, 3}},
		{"upsample mono", intBuf(16000, 1, 0, 300), 24000, []int{0, 200, 300}},
		{"downsample mono", intBuf(48000, 1, 10, 20, 30, 40), 24000, []int{10, 30}},
		{"upsample stereo keeps channels apart", intBuf(8000, 2, 0, 1000, 100, 1000), 16000, []int{0, 1000, 50, 1000, 100, 1000, 100, 1000}},
		{"empty", intBuf(16000, 1), 24000, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Resample(tt.in, tt.rate)
			if !slices.Equal(got.Data, tt.want) {
				t.Errorf("Data = %v, want %v", got.Data, tt.want)
			}
			if tt.rate > 0 && got.Format.SampleRate != tt.rate {
				t.Errorf("SampleRate = %d, want %d", got.Format.SampleRate, tt.rate)
			}
		})
	}
}

func TestRemix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       *goaudio.IntBuffer
		channels int
		want     []int
	}{
		{"mono to stereo", intBuf(24000, 1, 100, -200), 2, []int{100, 100, -200, -200}},
		{"stereo to mono averages", intBuf(24000, 2, 100, 300, -32768, -32768), 1, []int{200, -32768}},
		{"unchanged", intBuf(24000, 2, 1, 2), 2, []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Remix(tt.in, tt.channels)
			if !slices.Equal(got.Data, tt.want) || got.Format.NumChannels != tt.channels {
				t.Errorf("Remix = %v (%dch), want %v (%dch)", got.Data, got.Format.NumChannels, tt.want, tt.channels)
			}
		})
	}
}

func TestFormatConverter_MatchingFormatIsZeroCopy(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.DefaultFormat}
	pcm := pcm16(100, 200)
	got := conv.Convert(pcm, audio.DefaultFormat)
	if &got[0] != &pcm[0] {
		t.Error("matching format should return the input slice")
	}
}

func TestFormatConverter_Conversions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		from audio.Format
		to   audio.Format
		in   []int16
		want []int16
	}{
		{
			name: "mono to stereo",
			from: audio.Format{SampleRate: 24000, Channels: 1},
			to:   audio.Format{SampleRate: 24000, Channels: 2},
			in:   []int16{100, 200, 300},
			want: []int16{100, 100, 200, 200, 300, 300},
		},
		{
			name: "16k stereo to 24k mono",
			from: audio.Format{SampleRate: 16000, Channels: 2},
			to:   audio.Format{SampleRate: 24000, Channels: 1},
			in:   []int16{1000, 1000, 2000, 2000},
			want: []int16{1000, 1667, 2000},
		},
		{
			name: "48k mono to 24k stereo",
			from: audio.Format{SampleRate: 48000, Channels: 1},
			to:   audio.Format{SampleRate: 24000, Channels: 2},
			in:   []int16{-5, 7, 9, 11},
			want: []int16{-5, -5, 9, 9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			conv := audio.FormatConverter{Target: tt.to}
			got := samples16(conv.Convert(pcm16(tt.in...), tt.from))
			if !slices.Equal(got, tt.want) {
				t.Errorf("Convert = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatConverter_MisalignedWarnsOnce(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	conv := audio.FormatConverter{
		Target: audio.DefaultFormat,
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	}
	if got := conv.Convert([]byte{1, 2, 3}, audio.DefaultFormat); got != nil {
		t.Errorf("odd byte count: got %d bytes, want nil", len(got))
	}
	if got := conv.Convert(make([]byte, 6), audio.Format{SampleRate: 24000, Channels: 2}); got != nil {
		t.Errorf("partial stereo frame: got %d bytes, want nil", len(got))
	}
	if n := strings.Count(logs.String(), "misaligned"); n != 1 {
		t.Errorf("misaligned warnings = %d, want 1", n)
	}
}
