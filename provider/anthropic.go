package provider

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"thinkchat/config"
	"thinkchat/model"
)

const anthropicMaxTokens = 4096

// AnthropicBackend streams from Claude. With a thinking budget set, the
// extended thinking blocks become steps.
type AnthropicBackend struct {
	client  *anthropic.Client
	model   anthropic.Model
	budget  int64
	baseURL string
}

var _ Backend = (*AnthropicBackend)(nil)

// NewAnthropicBackend creates an Anthropic backend. A budget of 0 disables
// extended thinking; the API requires at least 1024 otherwise.
//
// Returns an error if the API key is missing.
func NewAnthropicBackend(baseURL, apiKey, model string, budget int) (*AnthropicBackend, error) {
	if baseURL == "" {
		baseURL = config.BackendAnthropic.DefaultBaseURL()
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if model == "" {
		model = config.BackendAnthropic.DefaultModel()
	}
	if budget > 0 && budget < 1024 {
		budget = 1024
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicBackend{
		client:  &client,
		model:   anthropic.Model(model),
		budget:  int64(budget),
		baseURL: baseURL,
	}, nil
}

func (p *AnthropicBackend) OpenResponseStream(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
	messages, system := convertToAnthropicMessages(ParseTranscript(transcript))

	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  messages,
		System:    system,
		MaxTokens: anthropicMaxTokens,
	}
	if p.budget > 0 {
		// max_tokens must exceed the thinking budget.
		params.MaxTokens = p.budget + anthropicMaxTokens
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: p.budget},
		}
	}

	return produce(ctx, p.GetDisplayName(), func(ctx context.Context, out *emitter) error {
		s := p.client.Messages.NewStreaming(ctx, params)
		defer s.Close()

		for s.Next() {
			event := s.Current()

			switch eventVariant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.ThinkingDelta:
					if err := out.reasoning(deltaVariant.Thinking); err != nil {
						return err
					}
				case anthropic.TextDelta:
					if err := out.content(deltaVariant.Text); err != nil {
						return err
					}
				}
			case anthropic.ContentBlockStopEvent:
				// A finished thinking block ends its last paragraph.
				if err := out.sendSteps(out.steps.Flush()); err != nil {
					return err
				}
			}
		}

		if err := s.Err(); err != nil {
			return fmt.Errorf("Anthropic streaming error: %w", err)
		}
		return nil
	}), nil
}

func (p *AnthropicBackend) GetModel() string {
	return string(p.model)
}

func (p *AnthropicBackend) GetDisplayName() string {
	return string(p.model)
}

// Ping makes a minimal request; Anthropic has no health endpoint.
func (p *AnthropicBackend) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("Anthropic ping failed: %w", err)
	}
	return nil
}
