// Package provider runs conversations directly against an LLM API instead
// of the conversation server.
//
// Each backend turns the provider's native stream into the same typed
// events the server sends over /llm_stream: the model's reasoning becomes
// steps events, its answer becomes content events, and the model name is
// reported as the strategy. The chat session cannot tell the difference.
//
// # Backends
//
//   - OllamaBackend: local Ollama server, reasoning via the think option
//   - OpenAIBackend: OpenAI chat completions
//   - OpenRouterBackend: OpenRouter (OpenAI-compatible, reasoning field)
//   - AnthropicBackend: Claude with extended thinking
//   - LocalBackend: offline echo backend for demos and tests
//
// # Usage
//
//	b, err := provider.NewBackend(provider.Config{
//	    Kind:  config.BackendOllama,
//	    Model: "qwen3:latest",
//	})
//	if err != nil {
//	    // handle error
//	}
//	src, err := b.OpenResponseStream(ctx, transcript, conversationID)
package provider

import (
	"context"

	"thinkchat/config"
	"thinkchat/model"
)

// Backend is a model.Backend that talks to an LLM API directly.
type Backend interface {
	model.Backend
	GetModel() string
	GetDisplayName() string
	Ping(ctx context.Context) error
}

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

var (
	_ ModelLister = (*OllamaBackend)(nil)
	_ ModelLister = (*OpenAIBackend)(nil)
	_ ModelLister = (*OpenRouterBackend)(nil)
)

// Config holds backend-specific configuration.
type Config struct {
	Kind           config.BackendKind
	BaseURL        string
	Model          string
	APIKey         string // For OpenAI/OpenRouter/Anthropic (unused for Ollama)
	ThinkingBudget int    // Anthropic extended thinking tokens, 0 disables
}
