// Package mock provides a scripted llm.Provider for tests.
//
// Either list the chunks explicitly or set Script and let the mock split it:
//
//	p := &mock.Provider{Script: "主播A：你好\n主播B：大家好", ChunkRunes: 3}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/newscast/pkg/provider/llm"
)

// Call records one request made to the mock.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider implements llm.Provider with canned output.
type Provider struct {
	mu sync.Mutex

	// StreamChunks is emitted verbatim by StreamCompletion. When empty and
	// Script is set, Script is streamed instead.
	StreamChunks []llm.Chunk

	// Script is streamed in pieces of ChunkRunes runes (default 8) followed
	// by a "stop" chunk. Complete returns it whole.
	Script     string
	ChunkRunes int

	// StreamErr fails StreamCompletion before a channel is returned.
	StreamErr error

	// Block, if non-nil, holds the stream open until it is closed or ctx ends.
	Block <-chan struct{}

	CompleteResponse  *llm.CompletionResponse
	CompleteErr       error
	ModelCapabilities llm.ModelCapabilities

	StreamCalls   []Call
	CompleteCalls []Call
}

// ScriptChunks splits text into chunks of n runes and appends a "stop" chunk.
func ScriptChunks(text string, n int) []llm.Chunk {
	if n <= 0 {
		n = 8
	}
	runes := []rune(text)
	var out []llm.Chunk
	for len(runes) > 0 {
		k := min(n, len(runes))
		out = append(out, llm.Chunk{Text: string(runes[:k])})
		runes = runes[k:]
	}
	return append(out, llm.Chunk{FinishReason: "stop"})
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, Call{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		p.mu.Unlock()
		return nil, p.StreamErr
	}
	chunks := append([]llm.Chunk(nil), p.StreamChunks...)
	if len(chunks) == 0 && p.Script != "" {
		chunks = ScriptChunks(p.Script, p.ChunkRunes)
	}
	block := p.Block
	p.mu.Unlock()

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				return
			}
		}
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, Call{Ctx: ctx, Req: req})
	if p.CompleteResponse == nil && p.CompleteErr == nil && p.Script != "" {
		return &llm.CompletionResponse{Content: p.Script}, nil
	}
	return p.CompleteResponse, p.CompleteErr
}

func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// StreamCallCount returns the number of StreamCompletion calls so far.
func (p *Provider) StreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

var _ llm.Provider = (*Provider)(nil)
