package script_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/newscast/pkg/script"
)

func TestExtractCitations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		wantText string
		wantRefs []int
	}{
		{"none", "今天的新闻很多。", "今天的新闻很多。", nil},
		{"single", "油价上涨了 [2]。", "油价上涨了。", []int{2}},
		{"multiple unsorted with duplicate", "据报道[3][0]，市场反应平稳[3]", "据报道，市场反应平稳", []int{0, 3}},
		{"full-width brackets", "央行宣布降息【1】", "央行宣布降息", []int{1}},
		{"non-numeric brackets kept", "see [note] here", "see [note] here", nil},
		{"only a citation", "[4]", "", []int{4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			text, refs := script.ExtractCitations(tt.in)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if !slices.Equal(refs, tt.wantRefs) {
				t.Errorf("refs = %v, want %v", refs, tt.wantRefs)
			}
		})
	}
}
