package config

import "time"

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/thinkchat",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Server: ServerConfig{
			URL:            "http://localhost:5000",
			RequestTimeout: 30 * time.Second,
		},
		Thinking: ThinkingConfig{
			StepDisplayTime: 5 * time.Second,
			SettleDelay:     time.Second,
			RevealStagger:   500 * time.Millisecond,
		},
		Stream: StreamConfig{
			MaxRetries:    3,
			RetryInterval: 500 * time.Millisecond,
			TurnTimeout:   120 * time.Second,
		},
		Backend: BackendConfig{
			Kind: string(BackendServer),
		},
		Security: SecurityConfig{
			CredentialStorage: SecurityPlainText,
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# thinkchat System Configuration
# Location: ~/.config/thinkchat/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations, credentials and user config are stored
data_directory = "~/.local/share/thinkchat"
`
}

func GenerateUserConfigTemplate() string {
	return `# thinkchat User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io
# Durations use Go syntax: "500ms", "5s", "2m"

[server]
# Conversation server (used when backend.kind = "server")
url = "http://localhost:5000"
request_timeout = "30s"

[thinking]
# How long each reasoning step stays on screen
step_display_time = "5s"
# How long the last step lingers (hidden) before the indicator clears
settle_delay = "1s"
# Delay between steps when expanding the step list
reveal_stagger = "500ms"

[stream]
max_retries = 3
retry_interval = "500ms"
# Overall limit for one assistant response
turn_timeout = "2m"

[backend]
# server | ollama | openai | openrouter | anthropic | local
kind = "server"
# Model for direct backends (empty uses the backend default)
model = ""
base_url = ""
# Token budget for extended thinking (anthropic only, 0 disables)
thinking_budget = 0

[security]
# plaintext | ssh_key
credential_storage = "plaintext"
ssh_key_path = ""
`
}
