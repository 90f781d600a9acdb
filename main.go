package main

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"thinkchat/api"
	"thinkchat/config"
	"thinkchat/model"
	"thinkchat/provider"
	"thinkchat/storage"
	"thinkchat/ui"
)

const (
	Version = "v0.01.00"
	License = "Apache-2.0"
)

var rootCmd = &cobra.Command{
	Use:           "thinkchat",
	Short:         "Chat with a model that shows its reasoning steps",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

func init() {
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newConversationsCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newModelsCmd())
	rootCmd.AddCommand(newSetKeyCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "thinkchat: %v\n", err)
		os.Exit(1)
	}
}

// app holds the dependencies chosen by the configured backend kind.
type app struct {
	cfg      *config.Config
	store    model.Store
	backend  model.Backend
	searcher model.Searcher
	auth     model.Authenticator
	client   *api.Client
	closer   io.Closer
}

func (a *app) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// loadApp reads the configuration and wires the store and backend. The
// conversation server provides both; direct backends keep conversations in
// the local database.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize debug logging after config is loaded
	config.InitDebugLog(cfg.DataDir())

	if err := unlockCredentials(cfg); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	kind := cfg.BackendKind()

	if kind.UsesServer() {
		client := api.NewClient(cfg, config.NewTokenStore(cfg.CredentialStore, cfg.DataDir()))
		a.client = client
		a.store = client
		a.backend = client
		a.auth = client
		return a, nil
	}

	backend, err := provider.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	a.backend = backend
	a.store = store
	a.searcher = store
	a.closer = store
	return a, nil
}

// unlockCredentials reloads an SSH-key encrypted credential store with the
// passphrase from THINKCHAT_SSH_PASSPHRASE when the key needs one.
func unlockCredentials(cfg *config.Config) error {
	if cfg.CredentialStore.Method() != config.SecuritySSHKey {
		return nil
	}
	encrypted, err := config.IsSSHKeyEncrypted(config.ExpandPath(cfg.Security.SSHKeyPath))
	if err != nil || !encrypted {
		return err
	}
	passphrase := os.Getenv("THINKCHAT_SSH_PASSPHRASE")
	if passphrase == "" {
		return fmt.Errorf("SSH key %s is passphrase protected; set THINKCHAT_SSH_PASSPHRASE", cfg.Security.SSHKeyPath)
	}
	cfg.CredentialStore.SetPassphrase(passphrase)
	if err := cfg.CredentialStore.Load(cfg.DataDir()); err != nil {
		return fmt.Errorf("failed to unlock credentials: %w", err)
	}
	return nil
}

func runTUI() error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("Warning: failed to close store: %v", err)
		}
	}()

	keys, err := config.LoadKeybindings(a.cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to load keybindings: %w", err)
	}

	// A missing watcher only disables live reload
	watcher, err := config.NewWatcher(a.cfg.DataDir())
	if err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: config watcher disabled: %v", err)
	}

	dataModel := model.NewModel(a.cfg, a.store, a.backend, a.searcher, a.auth, Version)

	p := tea.NewProgram(
		ui.NewAppView(dataModel, keys, watcher),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running thinkchat: %w", err)
	}
	return nil
}
