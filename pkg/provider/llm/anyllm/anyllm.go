// Package anyllm provides a universal LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	p, err := anyllm.New("deepseek", "deepseek-chat", anyllmlib.WithAPIKey("sk-..."))
//	p, err := anyllm.New("ollama", "qwen2.5:14b")
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/newscast/pkg/provider/llm"
	"github.com/MrWong99/newscast/pkg/types"
)

// Backends lists the provider names accepted by New.
var Backends = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a new Provider backed by the named any-llm-go backend.
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). Without an API key option the backend falls back to
// its environment variable (e.g., DEEPSEEK_API_KEY).
func New(backendName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if backendName == "" {
		return nil, fmt.Errorf("anyllm: backend name must not be empty: %w", types.ErrConfiguration)
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty: %w", types.ErrConfiguration)
	}

	backend, err := createBackend(backendName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w: %w", backendName, types.ErrConfiguration, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: %s", name, strings.Join(Backends, ", "))
	}
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params := p.buildParams(req)
	if len(params.Messages) == 0 {
		return nil, fmt.Errorf("anyllm: request has no messages")
	}

	backendChunks, backendErrs := p.backend.CompletionStream(ctx, params)

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)

		for chunk := range backendChunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			out := llm.Chunk{
				Text:         choice.Delta.Content,
				FinishReason: choice.FinishReason,
			}
			if out.Text == "" && out.FinishReason == "" {
				continue
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}

		// Backend errors arrive after the chunk channel is drained.
		if err := <-backendErrs; err != nil {
			select {
			case ch <- llm.Chunk{FinishReason: llm.FinishReasonError, Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", classify(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	result := &llm.CompletionResponse{
		Content: resp.Choices[0].Message.ContentString(),
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

// buildParams converts a CompletionRequest into anyllm CompletionParams.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}

// modelCapabilities returns ModelCapabilities for known model families.
// Unknown models receive conservative defaults.
func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		ContextWindow:   128_000,
		MaxOutputTokens: 4_096,
	}

	lower := strings.ToLower(model)
	switch {
	// ── OpenAI ───────────────────────────────────────────────────────────────
	case strings.HasPrefix(lower, "gpt-4o"):
		caps.MaxOutputTokens = 16_384
	case strings.HasPrefix(lower, "gpt-4"):
		caps.ContextWindow = 8_192

	// ── Anthropic ────────────────────────────────────────────────────────────
	case strings.Contains(lower, "claude-3-opus"):
		caps.ContextWindow = 200_000
	case strings.HasPrefix(lower, "claude"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 8_192

	// ── Google ───────────────────────────────────────────────────────────────
	case strings.Contains(lower, "gemini-1.5-pro"):
		caps.ContextWindow = 2_097_152
		caps.MaxOutputTokens = 8_192
	case strings.HasPrefix(lower, "gemini"):
		caps.ContextWindow = 1_048_576
		caps.MaxOutputTokens = 8_192

	// ── DeepSeek / Qwen ──────────────────────────────────────────────────────
	case strings.HasPrefix(lower, "deepseek"):
		caps.ContextWindow = 64_000
		caps.MaxOutputTokens = 8_192
	case strings.HasPrefix(lower, "qwen"):
		caps.ContextWindow = 32_768
		caps.MaxOutputTokens = 8_192
	}
	return caps
}

var _ llm.Provider = (*Provider)(nil)

// classify tags a backend failure for the fallback chain. The backends do not
// share an error type, so anything but cancellation counts as remote.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}
	return fmt.Errorf("%w: %w", types.ErrRemote, err)
}
