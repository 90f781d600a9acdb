package provider

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"thinkchat/config"
)

const pingTimeout = 10 * time.Second

// PingBackendMsg is sent when a backend health check completes.
type PingBackendMsg struct {
	Kind  config.BackendKind
	Model string
	Err   error
}

// PingBackend checks that the backend is reachable and its credentials are
// accepted. The UI runs it at startup for direct backends.
func PingBackend(b Backend, kind config.BackendKind) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()

		if err := b.Ping(ctx); err != nil {
			return PingBackendMsg{
				Kind:  kind,
				Model: b.GetModel(),
				Err:   fmt.Errorf("connection failed: %w", err),
			}
		}

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] %s ping successful", kind)
		}

		return PingBackendMsg{Kind: kind, Model: b.GetModel()}
	}
}
