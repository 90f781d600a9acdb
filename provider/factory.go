package provider

import (
	"fmt"
	"time"

	"thinkchat/config"
)

// localDelay paces the local backend so its steps are visible.
const localDelay = 150 * time.Millisecond

// NewBackend creates a direct backend from configuration.
//
// Returns an error if:
//   - The kind is the conversation server, which is served by api.Client
//   - The kind is unknown
//   - The backend constructor fails (e.g., missing API key)
func NewBackend(cfg Config) (Backend, error) {
	var (
		b   Backend
		err error
	)

	switch cfg.Kind {
	case config.BackendOllama:
		b, err = asBackend(NewOllamaBackend(cfg.BaseURL, cfg.Model))
	case config.BackendOpenRouter:
		b, err = asBackend(NewOpenRouterBackend(cfg.BaseURL, cfg.APIKey, cfg.Model))
	case config.BackendOpenAI:
		b, err = asBackend(NewOpenAIBackend(cfg.BaseURL, cfg.APIKey, cfg.Model))
	case config.BackendAnthropic:
		b, err = asBackend(NewAnthropicBackend(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.ThinkingBudget))
	case config.BackendLocal:
		b = NewLocalBackend(localDelay)
	case config.BackendServer:
		err = fmt.Errorf("the server backend is not a direct provider")
	default:
		err = fmt.Errorf("unknown backend kind: %s", cfg.Kind)
	}

	if err != nil {
		return nil, err
	}
	return b, nil
}

// asBackend keeps a failed constructor's typed nil pointer out of the
// returned interface.
func asBackend(b Backend, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}
