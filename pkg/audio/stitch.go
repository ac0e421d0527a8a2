package audio

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-audio/wav"

	"github.com/MrWong99/newscast/pkg/types"
)

// Utterance pairs a dialogue unit with its synthesised clip.
type Utterance struct {
	Unit types.DialogueUnit
	Clip Clip

	// Sources lists the article indices cited by this unit, if any.
	Sources []int
}

// Stitched is the merged asset of a batch and its timeline.
type Stitched struct {
	// PCM is the merged audio in Format.
	PCM    []byte
	Format Format

	// Segments has one entry per accepted utterance, in order.
	Segments []types.ScriptSegment

	// Skipped lists the indices of utterances dropped as invalid.
	Skipped []int
}

// Duration returns the total length of the merged asset in seconds.
func (s *Stitched) Duration() float64 {
	return s.Format.Seconds(s.Format.Frames(s.PCM))
}

// Stitcher concatenates utterance clips into one timeline.
type Stitcher struct {
	// Target is the output format. Clips in another format are converted.
	Target Format

	Logger *slog.Logger
}

// Stitch appends each valid clip at a running offset and records one
// ScriptSegment per accepted utterance. Empty or undecodable clips are
// logged and skipped; they never abort the batch.
func (s *Stitcher) Stitch(parts []Utterance) (*Stitched, error) {
	if !s.Target.Valid() {
		return nil, fmt.Errorf("audio: stitch: target format %s: %w", s.Target, types.ErrAudioProcessing)
	}
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	conv := FormatConverter{Target: s.Target, Logger: log}
	out := &Stitched{Format: s.Target}
	offset := 0 // in frames of Target

	for _, p := range parts {
		pcm, f, err := p.Clip.PCM()
		if err == nil {
			pcm = conv.Convert(pcm, f)
		}
		frames := s.Target.Frames(pcm)
		if err != nil || frames == 0 {
			log.Warn("audio: skipping utterance without playable audio",
				"index", p.Unit.Index,
				"speaker", p.Unit.Speaker.String(),
				"err", err,
			)
			out.Skipped = append(out.Skipped, p.Unit.Index)
			continue
		}

		out.PCM = append(out.PCM, pcm...)
		out.Segments = append(out.Segments, types.ScriptSegment{
			Speaker:              p.Unit.Speaker,
			Content:              p.Unit.Text,
			StartTime:            s.Target.Seconds(offset),
			EndTime:              s.Target.Seconds(offset + frames),
			SourceArticleIndices: p.Sources,
		})
		offset += frames
	}
	return out, nil
}

// Export writes the merged asset as a 16-bit WAV file to w. Any failure is a
// types.ErrAudioProcessing.
func (s *Stitched) Export(w io.WriteSeeker) error {
	enc := wav.NewEncoder(w, s.Format.SampleRate, 16, s.Format.Channels, 1)
	if err := enc.Write(intBuffer(s.PCM, s.Format)); err != nil {
		return fmt.Errorf("audio: export: write samples: %w: %w", types.ErrAudioProcessing, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: export: finalize: %w: %w", types.ErrAudioProcessing, err)
	}
	return nil
}

// ExportFile writes the merged asset to path, replacing any existing file.
// A partially written file is removed on failure.
func (s *Stitched) ExportFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: export: create %s: %w: %w", path, types.ErrAudioProcessing, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("audio: export: close %s: %w: %w", path, types.ErrAudioProcessing, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return s.Export(f)
}
