// Package script turns news articles into a two-host dialogue and parses that
// dialogue back into speaker-tagged units.
//
// A transcript carries one utterance per line in the form
// "<label><colon><text>", where the colon is either the full-width "：" or
// the ASCII ":". Labels containing "A" or "B" pick the host explicitly; any
// other label alternates hosts, starting with A.
package script

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/newscast/pkg/types"
)

const colons = ":："

// Parse splits transcript into ordered dialogue units. Blank lines and lines
// without a colon are skipped. An empty result is not an error.
func Parse(transcript string) []types.DialogueUnit {
	units := []types.DialogueUnit{}
	var (
		prev    types.Speaker
		hasPrev bool
	)
	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, text, ok := splitLine(line)
		if !ok {
			continue
		}
		speaker := resolveSpeaker(label, prev, hasPrev)
		units = append(units, types.DialogueUnit{
			Index:   len(units),
			Speaker: speaker,
			Text:    text,
		})
		prev, hasPrev = speaker, true
	}
	return units
}

// splitLine cuts line at the first colon of either width.
func splitLine(line string) (label, text string, ok bool) {
	i := strings.IndexAny(line, colons)
	if i < 0 {
		return "", "", false
	}
	_, size := utf8.DecodeRuneInString(line[i:])
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+size:]), true
}

func resolveSpeaker(label string, prev types.Speaker, hasPrev bool) types.Speaker {
	switch {
	case strings.Contains(label, "A"):
		return types.SpeakerA
	case strings.Contains(label, "B"):
		return types.SpeakerB
	case !hasPrev:
		return types.SpeakerA
	default:
		return prev.Other()
	}
}

// HostLabel returns the canonical transcript label for s.
func HostLabel(s types.Speaker) string {
	return "主播" + s.String()
}

// Render writes units back as a canonical transcript, one line per unit.
// Parse(Render(units)) reproduces the speakers and texts of units.
func Render(units []types.DialogueUnit) string {
	var sb strings.Builder
	for i, u := range units {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(HostLabel(u.Speaker))
		sb.WriteString("：")
		sb.WriteString(u.Text)
	}
	return sb.String()
}
