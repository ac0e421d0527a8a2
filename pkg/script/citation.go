package script

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var citationRE = regexp.MustCompile(`\s*[\[【](\d{1,4})[\]】]`)

// ExtractCitations removes "[n]" article citations from text and returns the
// cleaned text together with the cited indices in ascending order without
// duplicates. Text without citations is returned trimmed and unchanged.
func ExtractCitations(text string) (string, []int) {
	var refs []int
	cleaned := citationRE.ReplaceAllStringFunc(text, func(m string) string {
		sub := citationRE.FindStringSubmatch(m)
		if n, err := strconv.Atoi(sub[1]); err == nil {
			refs = append(refs, n)
		}
		return ""
	})
	slices.Sort(refs)
	return strings.TrimSpace(cleaned), slices.Compact(refs)
}
