package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

type Client struct {
	client  *api.Client
	model   string
	baseURL string
}

// StreamCallback receives each streamed chunk. thinking is non-empty only
// for models that reason before answering.
type StreamCallback func(thinking, content string) error

func NewClient(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "qwen3:latest"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	client := api.NewClient(parsedURL, http.DefaultClient)

	return &Client{
		client:  client,
		model:   model,
		baseURL: baseURL,
	}, nil
}

// ChatStream sends a streaming chat request. When think is set the model's
// reasoning is requested separately from its answer.
func (c *Client) ChatStream(ctx context.Context, messages []api.Message, think bool, callback StreamCallback) error {
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   func(b bool) *bool { return &b }(true),
	}
	if think {
		req.Think = &api.ThinkValue{Value: true}
	}

	respFunc := func(resp api.ChatResponse) error {
		if callback != nil {
			return callback(resp.Message.Thinking, resp.Message.Content)
		}
		return nil
	}

	return c.client.Chat(ctx, req, respFunc)
}

type ModelInfo struct {
	Name     string
	Size     int64
	Thinking bool
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, model := range resp.Models {
		models[i] = ModelInfo{
			Name:     model.Name,
			Size:     model.Size,
			Thinking: ModelSupportsThinking(model.Name),
		}
	}

	return models, nil
}

func (c *Client) GetModel() string {
	return c.model
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}

// thinkingModels tracks which model families accept the think option.
// Models outside the list reject it with a 400.
var thinkingModels = map[string]bool{
	"deepseek-r1": true,
	"qwen3":       true,
	"gpt-oss":     true,
	"magistral":   true,
	"phi4-mini-reasoning": true,
	"phi4-reasoning":      true,

	"qwen2.5": false,
	"qwen":    false,
	"llama3":  false,
	"mistral": false,
	"gemma":   false,
	"phi4":    false,
}

// orderedPrefixes lists the most specific prefixes first so that
// "phi4-reasoning" is not matched as plain "phi4".
var orderedPrefixes = []string{
	"deepseek-r1", "phi4-mini-reasoning", "phi4-reasoning",
	"qwen3", "qwen2.5", "gpt-oss", "magistral",
	"qwen", "llama3", "mistral", "gemma", "phi4",
}

// SupportsThinking reports whether the current model accepts the think option.
func (c *Client) SupportsThinking() bool {
	return ModelSupportsThinking(c.model)
}

func ModelSupportsThinking(modelName string) bool {
	modelName = strings.ToLower(modelName)

	for _, prefix := range orderedPrefixes {
		if strings.HasPrefix(modelName, prefix) {
			return thinkingModels[prefix]
		}
	}

	return false
}
