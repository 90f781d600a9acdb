package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"thinkchat/config"
	"thinkchat/model"
)

// OpenAIBackend streams chat completions from OpenAI or any compatible API.
type OpenAIBackend struct {
	client  openai.Client
	model   string
	baseURL string
}

var _ Backend = (*OpenAIBackend)(nil)

// NewOpenAIBackend creates an OpenAI backend.
//
// Returns an error if the API key is missing.
func NewOpenAIBackend(baseURL, apiKey, model string) (*OpenAIBackend, error) {
	if baseURL == "" {
		baseURL = config.BackendOpenAI.DefaultBaseURL()
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = config.BackendOpenAI.DefaultModel()
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIBackend{
		client:  client,
		model:   model,
		baseURL: baseURL,
	}, nil
}

func (p *OpenAIBackend) OpenResponseStream(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(ParseTranscript(transcript)),
		Model:    openai.ChatModel(p.model),
	}

	return produce(ctx, p.GetDisplayName(), func(ctx context.Context, out *emitter) error {
		if err := streamCompletion(ctx, &p.client, params, out); err != nil {
			return fmt.Errorf("OpenAI streaming error: %w", err)
		}
		return nil
	}), nil
}

// reasoningFields are the non-standard delta fields compatible APIs use
// for the model's reasoning trace.
var reasoningFields = []string{"reasoning", "reasoning_content"}

// streamCompletion forwards one chat completion stream to out.
func streamCompletion(ctx context.Context, client *openai.Client, params openai.ChatCompletionNewParams, out *emitter, opts ...option.RequestOption) error {
	s := client.Chat.Completions.NewStreaming(ctx, params, opts...)
	defer s.Close()

	for s.Next() {
		chunk := s.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		for _, field := range reasoningFields {
			if err := out.reasoning(extraString(delta.JSON.ExtraFields[field].Raw())); err != nil {
				return err
			}
		}
		if err := out.content(delta.Content); err != nil {
			return err
		}
	}

	return s.Err()
}

// extraString decodes a raw JSON string field, ignoring null and other types.
func extraString(raw string) string {
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return ""
	}
	return s
}

// ListModels returns the model ids the API offers.
func (p *OpenAIBackend) ListModels(ctx context.Context) ([]string, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenAI models: %w", err)
	}

	result := make([]string, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, m.ID)
	}
	return result, nil
}

func (p *OpenAIBackend) GetModel() string {
	return p.model
}

func (p *OpenAIBackend) GetDisplayName() string {
	return p.model
}

// Ping lists models to check the key and endpoint.
func (p *OpenAIBackend) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenAI ping failed: %w", err)
	}
	return nil
}
