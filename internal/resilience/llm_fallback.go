package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/newscast/pkg/provider/llm"
	"github.com/MrWong99/newscast/pkg/types"
)

// LLMFallback implements [llm.Provider] with failover across several script
// writing backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a stream on the first healthy provider. A provider
// counts as failed until it delivers its first chunk, so a stream that errors
// before any text still fails over; an error chunk after text ends the script.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		ch, err := p.StreamCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		return peekStream(ctx, ch)
	})
}

// peekStream waits for the first chunk of ch and returns a stream that
// replays it followed by the rest.
func peekStream(ctx context.Context, ch <-chan llm.Chunk) (<-chan llm.Chunk, error) {
	var first llm.Chunk
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c, ok := <-ch:
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("resilience: stream closed before any output: %w", types.ErrRemote)
		}
		if c.FinishReason == llm.FinishReasonError {
			return nil, fmt.Errorf("resilience: stream failed: %s: %w", c.Text, types.ErrRemote)
		}
		first = c
	}

	out := make(chan llm.Chunk, 32)
	go func() {
		defer close(out)
		select {
		case out <- first:
		case <-ctx.Done():
			return
		}
		for c := range ch {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Capabilities returns the primary's capabilities.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	return f.group.Primary().Capabilities()
}
