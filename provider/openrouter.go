package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"thinkchat/config"
	"thinkchat/model"
)

// OpenRouterBackend streams from OpenRouter, which is OpenAI-compatible and
// returns reasoning in a separate delta field.
type OpenRouterBackend struct {
	client  openai.Client
	model   string
	baseURL string
}

var _ Backend = (*OpenRouterBackend)(nil)

// NewOpenRouterBackend creates an OpenRouter backend.
//
// Returns an error if the API key is missing.
func NewOpenRouterBackend(baseURL, apiKey, model string) (*OpenRouterBackend, error) {
	if baseURL == "" {
		baseURL = config.BackendOpenRouter.DefaultBaseURL()
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}
	if model == "" {
		model = config.BackendOpenRouter.DefaultModel()
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenRouterBackend{
		client:  client,
		model:   model,
		baseURL: baseURL,
	}, nil
}

func (p *OpenRouterBackend) OpenResponseStream(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(ParseTranscript(transcript)),
		Model:    openai.ChatModel(p.model),
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[OpenRouter] streaming to model '%s'", p.model)
	}

	// include_reasoning asks OpenRouter to stream the reasoning field.
	reqOpt := option.WithJSONSet("include_reasoning", true)

	return produce(ctx, p.GetDisplayName(), func(ctx context.Context, out *emitter) error {
		if err := streamCompletion(ctx, &p.client, params, out, reqOpt); err != nil {
			return fmt.Errorf("OpenRouter streaming error: %w", err)
		}
		return nil
	}), nil
}

// ListModels returns OpenRouter model ids, vendor prefix included.
func (p *OpenRouterBackend) ListModels(ctx context.Context) ([]string, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenRouter models: %w", err)
	}

	result := make([]string, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, m.ID)
	}
	return result, nil
}

// GetModel returns the full model name with vendor prefix for API calls.
// Example: "deepseek/deepseek-r1"
func (p *OpenRouterBackend) GetModel() string {
	return p.model
}

// GetDisplayName returns the model name with vendor prefix stripped.
// Example: "deepseek/deepseek-r1" → "deepseek-r1"
func (p *OpenRouterBackend) GetDisplayName() string {
	return stripProviderPrefix(p.model)
}

func (p *OpenRouterBackend) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenRouter ping failed: %w", err)
	}
	return nil
}

// stripProviderPrefix removes vendor prefixes from OpenRouter model names.
// "meta-llama/llama-3.2-90b-instruct" → "llama-3.2-90b-instruct"
func stripProviderPrefix(modelName string) string {
	if idx := strings.Index(modelName, "/"); idx != -1 {
		return modelName[idx+1:]
	}
	return modelName
}
