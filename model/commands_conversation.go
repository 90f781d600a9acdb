package model

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"thinkchat/config"
)

const requestTimeout = 30 * time.Second

// FetchConversations retrieves the conversation list
func (m *Model) FetchConversations() tea.Cmd {
	if m.Store == nil {
		return nil
	}
	store := m.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		convs, err := store.ListConversations(ctx)
		return ConversationsListMsg{Conversations: convs, Err: err}
	}
}

// CreateConversation creates a conversation titled after the current list
// length, e.g. "New Conversation 3".
func (m *Model) CreateConversation() tea.Cmd {
	if m.Store == nil {
		return nil
	}
	store := m.Store
	title := fmt.Sprintf("New Conversation %d", len(m.Conversations)+1)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		conv, err := store.CreateConversation(ctx, title)
		if err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Model] CreateConversation failed: %v", err)
		}
		return ConversationCreatedMsg{Conversation: conv, Err: err}
	}
}

// DeleteConversation removes a conversation and its messages
func (m *Model) DeleteConversation(id string) tea.Cmd {
	if m.Store == nil {
		return nil
	}
	store := m.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		return ConversationDeletedMsg{ID: id, Err: store.DeleteConversation(ctx, id)}
	}
}

// RenameConversation sets the title of any conversation in the list
func (m *Model) RenameConversation(id, title string) tea.Cmd {
	if m.Store == nil || title == "" {
		return nil
	}
	store := m.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		return ConversationRenamedMsg{ID: id, Title: title, Err: store.UpdateConversationTitle(ctx, id, title)}
	}
}

// SearchMessages runs a query against the local search index
func (m *Model) SearchMessages(query string) tea.Cmd {
	if m.Searcher == nil || query == "" {
		return nil
	}
	searcher := m.Searcher
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		matches, err := searcher.Search(ctx, query)
		return SearchResultsMsg{Query: query, Matches: matches, Err: err}
	}
}

// Login signs in with the given credentials
func (m *Model) Login(email, password string) tea.Cmd {
	if m.Auth == nil {
		return nil
	}
	auth := m.Auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		return LoginResultMsg{Email: email, Err: auth.Login(ctx, email, password)}
	}
}

// ApplyConversations replaces the cached list and keeps Current pointing at
// the matching entry when it still exists.
func (m *Model) ApplyConversations(convs []Conversation) {
	m.Conversations = convs
	if m.Current == nil {
		return
	}
	for i := range m.Conversations {
		if m.Conversations[i].ID == m.Current.ID {
			m.Current = &m.Conversations[i]
			return
		}
	}
	m.Current = nil
}

// RemoveConversation drops a deleted conversation from the cached list
func (m *Model) RemoveConversation(id string) {
	kept := make([]Conversation, 0, len(m.Conversations))
	for _, c := range m.Conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if m.Current != nil && m.Current.ID == id {
		m.Current = nil
	}
	m.ApplyConversations(kept)
}

// ApplyTitle updates the cached title of a renamed conversation
func (m *Model) ApplyTitle(id, title string) {
	for i := range m.Conversations {
		if m.Conversations[i].ID == id {
			m.Conversations[i].Title = title
		}
	}
}
