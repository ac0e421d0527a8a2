package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/newscast/pkg/provider/llm"
)

// Writer produces a dialogue transcript for a prompt.
//
// onPartial, when non-nil, receives the accumulated transcript each time more
// text arrives. Implementations must stop promptly when ctx is cancelled.
type Writer interface {
	Write(ctx context.Context, prompt string, onPartial func(text string)) (string, error)
}

// LLMWriter is a Writer backed by a streaming llm.Provider.
type LLMWriter struct {
	provider     llm.Provider
	systemPrompt string
	temperature  float64
	maxTokens    int
}

// WriterOption configures an LLMWriter.
type WriterOption func(*LLMWriter)

// WithSystemPrompt replaces SystemPrompt.
func WithSystemPrompt(p string) WriterOption {
	return func(w *LLMWriter) { w.systemPrompt = p }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) WriterOption {
	return func(w *LLMWriter) { w.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) WriterOption {
	return func(w *LLMWriter) { w.maxTokens = n }
}

// NewLLMWriter wraps p.
func NewLLMWriter(p llm.Provider, opts ...WriterOption) *LLMWriter {
	w := &LLMWriter{
		provider:     p,
		systemPrompt: SystemPrompt,
		temperature:  0.8,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Write implements Writer.
func (w *LLMWriter) Write(ctx context.Context, prompt string, onPartial func(text string)) (string, error) {
	ch, err := w.provider.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: w.systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature:  w.temperature,
		MaxTokens:    w.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("script: start completion: %w", err)
	}

	var sb strings.Builder
	for chunk := range ch {
		if chunk.FinishReason == llm.FinishReasonError {
			return "", fmt.Errorf("script: completion stream: %w", errors.New(chunk.Text))
		}
		if chunk.Text == "" {
			continue
		}
		sb.WriteString(chunk.Text)
		if onPartial != nil {
			onPartial(sb.String())
		}
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("script: %w", err)
	}
	return sb.String(), nil
}

var _ Writer = (*LLMWriter)(nil)
