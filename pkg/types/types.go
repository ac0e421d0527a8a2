// Package types defines the shared types used across all newscast packages.
//
// These types form the lingua franca between providers, the script parser, the
// audio stitcher, persistence, and the generation orchestrator. Each package
// defines its own domain types, but cross-cutting data structures live here to
// avoid circular imports.
package types

import (
	"fmt"
	"time"
)

// Speaker identifies one of the two podcast hosts.
type Speaker int

const (
	// SpeakerA is the first host. Unlabelled scripts start with SpeakerA.
	SpeakerA Speaker = iota

	// SpeakerB is the second host.
	SpeakerB
)

// String returns "A" or "B".
func (s Speaker) String() string {
	switch s {
	case SpeakerA:
		return "A"
	case SpeakerB:
		return "B"
	default:
		return fmt.Sprintf("Speaker(%d)", int(s))
	}
}

// Other returns the opposite host.
func (s Speaker) Other() Speaker {
	if s == SpeakerA {
		return SpeakerB
	}
	return SpeakerA
}

// MarshalText implements encoding.TextMarshaler so speakers serialise as "A"/"B".
func (s Speaker) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Speaker) UnmarshalText(b []byte) error {
	switch string(b) {
	case "A":
		*s = SpeakerA
	case "B":
		*s = SpeakerB
	default:
		return fmt.Errorf("types: unknown speaker %q", string(b))
	}
	return nil
}

// DialogueUnit is one parsed, speaker-tagged line of a podcast script.
// Units are produced by the script parser and are read-only afterwards.
type DialogueUnit struct {
	// Index is the position of the unit in the filtered line sequence.
	Index int

	// Speaker is the resolved host.
	Speaker Speaker

	// Text is the utterance content, trimmed of surrounding whitespace.
	Text string
}

// ScriptSegment is one entry of the produced timeline: the content spoken by a
// host between StartTime and EndTime (seconds from the start of the asset).
//
// Segments for a batch are strictly ordered and non-overlapping; adjacent
// segments share a boundary (EndTime of one equals StartTime of the next).
type ScriptSegment struct {
	Speaker              Speaker `json:"speaker"`
	Content              string  `json:"content"`
	StartTime            float64 `json:"startTime"`
	EndTime              float64 `json:"endTime"`
	SourceArticleIndices []int   `json:"sourceArticleIndices,omitempty"`
}

// Duration returns EndTime - StartTime.
func (s ScriptSegment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Article is one fetched news item. Feed formats are resolved upstream; the
// pipeline only sees normalised records.
type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description"`
	PubDate     time.Time `json:"pubDate"`
	Content     string    `json:"content"`

	// Source is the name of the source the article was fetched from.
	Source string `json:"source,omitempty"`
}

// Body returns the richest text available for the article: Content when set,
// otherwise Description.
func (a Article) Body() string {
	if a.Content != "" {
		return a.Content
	}
	return a.Description
}

// Podcast is a finished, persisted generation artifact.
type Podcast struct {
	// ID is the stable identifier assigned by the store.
	ID string `json:"id"`

	Title           string          `json:"title"`
	Topics          []string        `json:"topics"`
	DurationSeconds float64         `json:"durationSeconds"`
	ScriptText      string          `json:"scriptText"`
	AudioPath       string          `json:"audioPath"`
	Segments        []ScriptSegment `json:"segments"`
	SourceArticles  []Article       `json:"sourceArticles"`
	CreatedAt       time.Time       `json:"createdAt"`
}
