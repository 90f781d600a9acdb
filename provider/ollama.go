package provider

import (
	"context"
	"fmt"

	"thinkchat/config"
	"thinkchat/model"
	"thinkchat/ollama"
)

// OllamaBackend streams from a local Ollama server. Models that support it
// are asked to think, and their reasoning becomes steps.
type OllamaBackend struct {
	client *ollama.Client
}

var _ Backend = (*OllamaBackend)(nil)

// NewOllamaBackend creates an Ollama backend. Empty baseURL and model use
// the client defaults.
func NewOllamaBackend(baseURL, model string) (*OllamaBackend, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaBackend{
		client: client,
	}, nil
}

func (p *OllamaBackend) OpenResponseStream(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
	messages := ConvertToOllamaMessages(ParseTranscript(transcript))
	think := p.client.SupportsThinking()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Ollama] streaming %d messages to %s (think=%v)", len(messages), p.client.GetModel(), think)
	}

	return produce(ctx, p.GetDisplayName(), func(ctx context.Context, out *emitter) error {
		err := p.client.ChatStream(ctx, messages, think, func(thinking, content string) error {
			if err := out.reasoning(thinking); err != nil {
				return err
			}
			return out.content(content)
		})
		if err != nil {
			return fmt.Errorf("Ollama streaming error: %w", err)
		}
		return nil
	}), nil
}

// ListModels returns the models installed on the Ollama server. Models
// that can think are marked.
func (p *OllamaBackend) ListModels(ctx context.Context) ([]string, error) {
	models, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
		if m.Thinking {
			names[i] += " (thinking)"
		}
	}
	return names, nil
}

func (p *OllamaBackend) GetModel() string {
	return p.client.GetModel()
}

// GetDisplayName is the model name; Ollama names carry no vendor prefix.
func (p *OllamaBackend) GetDisplayName() string {
	return p.client.GetModel()
}

func (p *OllamaBackend) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
