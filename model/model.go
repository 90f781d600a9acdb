package model

import (
	"context"
	"time"

	"thinkchat/config"
)

// SearchMatch is a message that matched a search query.
type SearchMatch struct {
	ConversationID    string
	ConversationTitle string
	MessageID         string
	Role              Role
	Preview           string
	Timestamp         time.Time
}

// Searcher finds messages across all conversations.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchMatch, error)
}

// Authenticator signs the user in against the conversation server.
type Authenticator interface {
	Login(ctx context.Context, email, password string) error
	SignedIn() bool
}

// Model holds the core application data and business logic state
type Model struct {
	// Core dependencies
	Config   *config.Config
	Store    Store
	Backend  Backend
	Searcher Searcher // nil when the store has no local index
	Auth     Authenticator

	// Application data
	Conversations []Conversation
	Current       *Conversation

	// Runtime state (not UI)
	Quitting bool

	// Application metadata
	Version string
}

// NewModel creates a new Model with the given dependencies
func NewModel(cfg *config.Config, store Store, backend Backend, searcher Searcher, auth Authenticator, version string) *Model {
	return &Model{
		Config:   cfg,
		Store:    store,
		Backend:  backend,
		Searcher: searcher,
		Auth:     auth,
		Version:  version,
	}
}

// NeedsLogin reports whether the configured backend requires signing in
// before conversations can be listed.
func (m *Model) NeedsLogin() bool {
	return m.Auth != nil && !m.Auth.SignedIn()
}
