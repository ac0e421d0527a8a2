// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI, Anthropic,
// Gemini, or a local Ollama instance) and exposes the small surface the
// script writer needs: streaming and blocking completions plus static model
// metadata, without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// FinishReasonError marks a Chunk that carries a mid-stream error in its Text.
const FinishReasonError = "error"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// ModelCapabilities holds the token limits of a model. Zero means unknown.
type ModelCapabilities struct {
	ContextWindow   int
	MaxOutputTokens int
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero means
	// use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means use the
	// provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation history.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk. For a chunk whose
	// FinishReason is FinishReasonError it holds the error message instead.
	Text string

	// FinishReason is set on the final chunk: "stop", "length",
	// FinishReasonError, or "" for non-final chunks.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a channel that emits
	// Chunk values as they arrive. The channel is closed when generation
	// finishes or ctx is cancelled; callers must drain it.
	//
	// Errors that occur after the channel is opened are surfaced as a Chunk with
	// FinishReason FinishReasonError. The error return is non-nil only for
	// failures that prevent the stream from starting.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() ModelCapabilities
}
