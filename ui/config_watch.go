package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"thinkchat/chat"
	"thinkchat/config"
	"thinkchat/provider"
)

// waitForConfigChange blocks for the next reload reported by the watcher.
func (a AppView) waitForConfigChange() tea.Cmd {
	if a.watcher == nil {
		return nil
	}
	ch := a.watcher.Changes()
	return func() tea.Msg {
		reload, ok := <-ch
		return configChangedMsg{reload: reload, ok: ok}
	}
}

// applyConfig takes an edited config.toml into use. Timings apply to the
// next turn. A new direct backend replaces the old one; switching to or
// from the conversation server needs a restart because the store changes
// with it.
func (a *AppView) applyConfig(reload config.Reload) {
	if reload.Err != nil {
		a.addToast(chat.LevelError, fmt.Sprintf("Config not reloaded: %v", reload.Err))
		return
	}

	cfg := a.dataModel.Config
	before := cfg.BackendKind()
	cfg.Apply(reload.User)
	after := cfg.BackendKind()

	if a.session != nil {
		a.session.SetTiming(chat.TimingFromConfig(cfg))
	}

	if before.UsesServer() != after.UsesServer() {
		a.addToast(chat.LevelWarn, "Backend change takes effect after restart")
		return
	}
	if !after.UsesServer() {
		b, err := provider.FromConfig(cfg)
		if err != nil {
			a.addToast(chat.LevelError, fmt.Sprintf("Backend not changed: %v", err))
			return
		}
		a.dataModel.Backend = b
		if a.session != nil {
			a.session.SetBackend(b)
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] config reloaded (backend %s)", after)
	}
	a.addToast(chat.LevelInfo, "Configuration reloaded")
}
