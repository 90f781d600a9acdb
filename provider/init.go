package provider

import (
	"fmt"

	"thinkchat/config"
)

// FromConfig creates the direct backend selected in the user config,
// reading its API key from the credential store.
func FromConfig(cfg *config.Config) (Backend, error) {
	kind := cfg.BackendKind()
	if kind.NeedsAPIKey() && cfg.APIKey() == "" {
		return nil, fmt.Errorf("no API key stored for %s (run: thinkchat set-key %s)", kind.DisplayName(), kind)
	}

	b, err := NewBackend(ConfigFor(cfg))
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] failed to initialize %s backend: %v", kind, err)
		}
		return nil, err
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] initialized %s backend (model: %s)", kind, b.GetModel())
	}
	return b, nil
}

// ConfigFor maps the application config to backend settings.
func ConfigFor(cfg *config.Config) Config {
	return Config{
		Kind:           cfg.BackendKind(),
		BaseURL:        cfg.BaseURL(),
		Model:          cfg.Model(),
		APIKey:         cfg.APIKey(),
		ThinkingBudget: cfg.Backend.ThinkingBudget,
	}
}
