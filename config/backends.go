package config

import (
	"fmt"
	"strings"
)

// BackendKind selects where assistant responses come from.
type BackendKind string

const (
	BackendServer     BackendKind = "server"
	BackendOllama     BackendKind = "ollama"
	BackendOpenAI     BackendKind = "openai"
	BackendOpenRouter BackendKind = "openrouter"
	BackendAnthropic  BackendKind = "anthropic"
	BackendLocal      BackendKind = "local"
)

var backendKinds = []BackendKind{
	BackendServer, BackendOllama, BackendOpenAI, BackendOpenRouter, BackendAnthropic, BackendLocal,
}

// ParseBackendKind validates a backend name from config or flags.
func ParseBackendKind(s string) (BackendKind, error) {
	if s == "" {
		return BackendServer, nil
	}
	k := BackendKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range backendKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q (want one of server, ollama, openai, openrouter, anthropic, local)", s)
}

// UsesServer reports whether conversations live on the remote server.
// Every other backend keeps them in the local sqlite store.
func (k BackendKind) UsesServer() bool {
	return k == BackendServer
}

// NeedsAPIKey reports whether the backend reads an API key from the
// credential store.
func (k BackendKind) NeedsAPIKey() bool {
	switch k {
	case BackendOpenAI, BackendOpenRouter, BackendAnthropic:
		return true
	default:
		return false
	}
}

func (k BackendKind) DisplayName() string {
	switch k {
	case BackendServer:
		return "Server"
	case BackendOllama:
		return "Ollama"
	case BackendOpenRouter:
		return "OpenRouter"
	case BackendAnthropic:
		return "Anthropic"
	case BackendOpenAI:
		return "OpenAI"
	case BackendLocal:
		return "Local"
	default:
		return string(k)
	}
}

func (k BackendKind) DefaultBaseURL() string {
	switch k {
	case BackendOllama:
		return "http://localhost:11434"
	case BackendOpenRouter:
		return "https://openrouter.ai/api/v1"
	case BackendAnthropic:
		return "https://api.anthropic.com"
	case BackendOpenAI:
		return "https://api.openai.com/v1"
	default:
		return ""
	}
}

func (k BackendKind) DefaultModel() string {
	switch k {
	case BackendOllama:
		return "qwen3:latest"
	case BackendOpenRouter:
		return "deepseek/deepseek-r1"
	case BackendAnthropic:
		return "claude-sonnet-4-5"
	case BackendOpenAI:
		return "o4-mini"
	default:
		return ""
	}
}

// BaseURL returns the configured base URL or the backend default.
func (c *Config) BaseURL() string {
	if c.Backend.BaseURL != "" {
		return c.Backend.BaseURL
	}
	return c.BackendKind().DefaultBaseURL()
}

// Model returns the configured model or the backend default.
func (c *Config) Model() string {
	if c.Backend.Model != "" {
		return c.Backend.Model
	}
	return c.BackendKind().DefaultModel()
}

// APIKey returns the stored API key for the configured backend.
func (c *Config) APIKey() string {
	if c.CredentialStore == nil {
		return ""
	}
	return c.CredentialStore.Get(string(c.BackendKind()))
}

// UpdateBackendField updates a single [backend] field in the user config.
//
// Fields: "kind", "model", "base_url", "thinking_budget"
func UpdateBackendField(dataDir, fieldName, value string) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch fieldName {
	case "kind":
		kind, err := ParseBackendKind(value)
		if err != nil {
			return err
		}
		cfg.Backend.Kind = string(kind)
	case "model":
		cfg.Backend.Model = value
	case "base_url":
		cfg.Backend.BaseURL = value
	case "thinking_budget":
		var budget int
		if _, err := fmt.Sscanf(value, "%d", &budget); err != nil || budget < 0 {
			return fmt.Errorf("invalid thinking budget %q", value)
		}
		cfg.Backend.ThinkingBudget = budget
	default:
		return fmt.Errorf("unknown backend field: %s", fieldName)
	}

	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// SetAPIKey stores an API key for a backend and persists the credential store.
func SetAPIKey(cfg *Config, kind BackendKind, key string) error {
	if !kind.NeedsAPIKey() {
		return fmt.Errorf("%s does not use an API key", kind.DisplayName())
	}
	if cfg.CredentialStore == nil {
		return fmt.Errorf("credential store not initialized")
	}
	if err := cfg.CredentialStore.Set(string(kind), key); err != nil {
		return fmt.Errorf("failed to set API key: %w", err)
	}
	if err := cfg.CredentialStore.Save(cfg.DataDir()); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	return nil
}
