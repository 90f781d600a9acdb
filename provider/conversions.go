package provider

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"

	"thinkchat/model"
)

// systemPrompt frames the transcript for direct backends. The server adds
// its own; the APIs get this one.
const systemPrompt = "You are a helpful assistant. Think through the problem step by step " +
	"before answering, and keep each reasoning step to a short paragraph."

// ParseTranscript recovers the messages encoded by model.BuildTranscript.
// Text outside a ###ROLE### ... ###END### block is ignored.
func ParseTranscript(transcript string) []model.Message {
	var (
		messages []model.Message
		current  *model.Message
		body     []string
	)

	for _, line := range strings.Split(transcript, "\n") {
		if current == nil {
			switch line {
			case "###USER###":
				current = &model.Message{Role: model.RoleUser}
			case "###AI###":
				current = &model.Message{Role: model.RoleAssistant}
			}
			continue
		}

		if line == "###END###" {
			current.Content = strings.Join(body, "\n")
			messages = append(messages, *current)
			current, body = nil, nil
			continue
		}
		body = append(body, line)
	}

	return messages
}

// ConvertToOllamaMessages converts messages to Ollama api.Message,
// prefixed with the system prompt.
func ConvertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, 0, len(messages)+1)
	result = append(result, api.Message{Role: "system", Content: systemPrompt})
	for _, msg := range messages {
		result = append(result, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result
}

// ConvertToOpenAIMessages converts messages to OpenAI chat format,
// prefixed with the system prompt.
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	result = append(result, openai.SystemMessage(systemPrompt))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}

	return result
}

// convertToAnthropicMessages converts messages to Anthropic format. The
// system prompt travels separately.
func convertToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	system := []anthropic.TextBlockParam{{Text: systemPrompt}}
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return result, system
}
