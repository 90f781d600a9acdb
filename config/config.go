package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ErrNotLoggedIn is returned when the server backend is used without a
// stored access token.
var ErrNotLoggedIn = errors.New("not logged in")

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type ServerConfig struct {
	URL            string        `toml:"url"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

type ThinkingConfig struct {
	StepDisplayTime time.Duration `toml:"step_display_time"`
	SettleDelay     time.Duration `toml:"settle_delay"`
	RevealStagger   time.Duration `toml:"reveal_stagger"`
}

type StreamConfig struct {
	MaxRetries    int           `toml:"max_retries"`
	RetryInterval time.Duration `toml:"retry_interval"`
	TurnTimeout   time.Duration `toml:"turn_timeout"`
}

type BackendConfig struct {
	Kind           string `toml:"kind"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	ThinkingBudget int    `toml:"thinking_budget"`
}

type SecurityConfig struct {
	CredentialStorage SecurityMethod `toml:"credential_storage"`
	SSHKeyPath        string         `toml:"ssh_key_path"`
}

type UserConfig struct {
	Server   ServerConfig   `toml:"server"`
	Thinking ThinkingConfig `toml:"thinking"`
	Stream   StreamConfig   `toml:"stream"`
	Backend  BackendConfig  `toml:"backend"`
	Security SecurityConfig `toml:"security"`
}

type Config struct {
	DataDirectory string
	Server        ServerConfig
	Thinking      ThinkingConfig
	Stream        StreamConfig
	Backend       BackendConfig
	Security      SecurityConfig

	CredentialStore *CredentialStore
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// UserConfigPath returns the path of the user config inside the data directory.
func (c *Config) UserConfigPath() string {
	return filepath.Join(c.DataDir(), "config.toml")
}

// BackendKind returns the configured backend, defaulting to the server.
func (c *Config) BackendKind() BackendKind {
	kind, err := ParseBackendKind(c.Backend.Kind)
	if err != nil {
		return BackendServer
	}
	return kind
}

func (c *Config) applyUser(u *UserConfig) {
	c.Server = u.Server
	c.Thinking = u.Thinking
	c.Stream = u.Stream
	c.Backend = u.Backend
	c.Security = u.Security
	c.fillDefaults()
}

// fillDefaults replaces zero values left by a partial config file.
func (c *Config) fillDefaults() {
	d := DefaultUserConfig()
	if c.Server.URL == "" {
		c.Server.URL = d.Server.URL
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = d.Server.RequestTimeout
	}
	if c.Thinking.StepDisplayTime <= 0 {
		c.Thinking.StepDisplayTime = d.Thinking.StepDisplayTime
	}
	if c.Thinking.SettleDelay < 0 {
		c.Thinking.SettleDelay = 0
	}
	if c.Thinking.RevealStagger <= 0 {
		c.Thinking.RevealStagger = d.Thinking.RevealStagger
	}
	if c.Stream.MaxRetries <= 0 {
		c.Stream.MaxRetries = d.Stream.MaxRetries
	}
	if c.Stream.RetryInterval <= 0 {
		c.Stream.RetryInterval = d.Stream.RetryInterval
	}
	if c.Stream.TurnTimeout <= 0 {
		c.Stream.TurnTimeout = d.Stream.TurnTimeout
	}
	if c.Backend.Kind == "" {
		c.Backend.Kind = d.Backend.Kind
	}
	if c.Security.CredentialStorage == "" {
		c.Security.CredentialStorage = SecurityPlainText
	}
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("THINKCHAT_SERVER_URL"); url != "" {
		c.Server.URL = url
	}
	if backend := os.Getenv("THINKCHAT_BACKEND"); backend != "" {
		c.Backend.Kind = backend
	}
	if model := os.Getenv("THINKCHAT_MODEL"); model != "" {
		c.Backend.Model = model
	}
}

func CheckDebug() bool {
	debug := os.Getenv("THINKCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: the log may contain server URLs and conversation ids
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (THINKCHAT_DEBUG=%s) ===", os.Getenv("THINKCHAT_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load reads the system settings, then the user config from the data
// directory, then applies environment overrides. Missing files are created
// from the templates in defaults.go.
func Load() (*Config, error) {
	cfg := &Config{DataDirectory: GetDefaultDataDir()}

	if dataDir := os.Getenv("THINKCHAT_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	} else {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		cfg.DataDirectory = systemCfg.DataDirectory
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	return LoadFromDataDir(cfg.DataDirectory)
}

// LoadFromDataDir loads the user config and credentials from dataDir
// without consulting the system settings file.
func LoadFromDataDir(dataDirectory string) (*Config, error) {
	cfg := &Config{DataDirectory: dataDirectory}
	dataDir := cfg.DataDir()

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUser(userCfg)
	cfg.applyEnvOverrides()

	if _, err := ParseBackendKind(cfg.Backend.Kind); err != nil {
		return nil, err
	}

	cfg.CredentialStore = NewCredentialStore(cfg.Security.CredentialStorage, ExpandPath(cfg.Security.SSHKeyPath))
	if err := cfg.CredentialStore.Load(dataDir); err != nil {
		// An encrypted store may need a passphrase; callers retry after
		// SetPassphrase.
		if DebugLog != nil {
			DebugLog.Printf("[Config] credentials not loaded: %v", err)
		}
	}

	return cfg, nil
}

// Apply replaces the file-backed settings with u, keeping the data
// directory and credential store. The config watcher delivers u; the UI
// applies it from its update loop.
func (c *Config) Apply(u *UserConfig) {
	c.applyUser(u)
	c.applyEnvOverrides()
}
