package script

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/newscast/pkg/types"
)

// SystemPrompt instructs the model on the output format Parse expects.
const SystemPrompt = `You write scripts for a two-host news podcast.
Write only dialogue lines, one per line, each starting with "主播A：" or "主播B：".
Alternate naturally between the hosts, open with a greeting, close with a sign-off.
Cite the source article a line draws on as [n], using the article's number.
Do not add stage directions, headings, or markdown.`

// PromptOptions tunes BuildPrompt.
type PromptOptions struct {
	// TargetMinutes is the approximate spoken length to aim for. Zero means 5.
	TargetMinutes int

	// MaxArticles caps how many articles are included. Zero means no cap.
	MaxArticles int

	// MaxCharsPerArticle truncates each article body. Zero means 1200.
	MaxCharsPerArticle int

	// Language is the spoken language. Empty means Chinese.
	Language string
}

// BuildPrompt renders the script-writing request for topic from articles.
// Articles are numbered from zero so the model can cite them.
func BuildPrompt(topic string, articles []types.Article, opts PromptOptions) string {
	if opts.TargetMinutes <= 0 {
		opts.TargetMinutes = 5
	}
	if opts.MaxCharsPerArticle <= 0 {
		opts.MaxCharsPerArticle = 1200
	}
	if opts.Language == "" {
		opts.Language = "Chinese"
	}
	if opts.MaxArticles > 0 && len(articles) > opts.MaxArticles {
		articles = articles[:opts.MaxArticles]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", topic)
	fmt.Fprintf(&sb, "Language: %s\n", opts.Language)
	fmt.Fprintf(&sb, "Target length: about %d minutes of speech.\n\n", opts.TargetMinutes)
	sb.WriteString("Source articles:\n")
	for i, a := range articles {
		fmt.Fprintf(&sb, "\n[%d] %s", i, a.Title)
		if !a.PubDate.IsZero() {
			fmt.Fprintf(&sb, " (%s)", a.PubDate.Format("2006-01-02"))
		}
		sb.WriteByte('\n')
		if body := clip(strings.TrimSpace(a.Body()), opts.MaxCharsPerArticle); body != "" {
			sb.WriteString(body)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
