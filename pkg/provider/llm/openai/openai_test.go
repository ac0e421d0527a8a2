package openai

import (
	"errors"
	"testing"

	"github.com/MrWong99/newscast/pkg/provider/llm"
	"github.com/MrWong99/newscast/pkg/types"
)

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	sys, err := convertMessage(llm.Message{Role: "system", Content: "be brief"})
	if err != nil {
		t.Fatalf("system: %v", err)
	}
	if sys.OfSystem == nil {
		t.Error("expected OfSystem to be set")
	}

	usr, err := convertMessage(llm.Message{Role: "user", Content: "hello"})
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if usr.OfUser == nil {
		t.Error("expected OfUser to be set")
	}

	asst, err := convertMessage(llm.Message{Role: "assistant", Content: "hi"})
	if err != nil {
		t.Fatalf("assistant: %v", err)
	}
	if asst.OfAssistant == nil {
		t.Error("expected OfAssistant to be set")
	}

	if _, err := convertMessage(llm.Message{Role: "tool"}); err == nil {
		t.Error("expected error for unsupported role")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "write a script",
		Messages:     []llm.Message{{Role: "user", Content: "topic: tech"}},
		Temperature:  0.7,
		MaxTokens:    2048,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("Model = %q", params.Model)
	}
	if got := params.Temperature.Value; got != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", got)
	}
	if got := params.MaxCompletionTokens.Value; got != 2048 {
		t.Errorf("MaxCompletionTokens = %v, want 2048", got)
	}
}

func TestBuildParams_Empty(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o"}
	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for request without messages")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("empty api key: err = %v, want ErrConfiguration", err)
	}
	if _, err := New("sk-test", ""); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("empty model: err = %v, want ErrConfiguration", err)
	}
	p, err := New("sk-test", "gpt-4o", WithBaseURL("http://localhost:1"), WithTimeout(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "gpt-4o" {
		t.Errorf("model = %q", p.model)
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model     string
		maxOutput int
	}{
		{"gpt-4o-mini", 16_384},
		{"GPT-4O", 16_384},
		{"gpt-4", 4_096},
		{"doubao-seed-1.6", 12_288},
		{"unknown-model", 4_096},
	}
	for _, tt := range tests {
		if got := modelCapabilities(tt.model).MaxOutputTokens; got != tt.maxOutput {
			t.Errorf("modelCapabilities(%q).MaxOutputTokens = %d, want %d", tt.model, got, tt.maxOutput)
		}
	}
}
