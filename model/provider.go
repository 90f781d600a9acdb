package model

import (
	"context"
	"errors"

	"thinkchat/config"
)

// ErrSessionExpired is returned when the server rejected the access token
// and it could not be refreshed. The stored session has been cleared.
var ErrSessionExpired = errors.New("session expired, please log in again")

// NeedsSignIn reports whether err means the user has to sign in before
// anything else can be sent to the server.
func NeedsSignIn(err error) bool {
	return errors.Is(err, ErrSessionExpired) || errors.Is(err, config.ErrNotLoggedIn)
}

// Backend produces a response stream for a conversation transcript.
//
// This interface is defined in the model package (not api or provider) to
// avoid import cycles: both the HTTP client and the direct LLM providers
// implement it, and the chat session depends only on this contract.
type Backend interface {
	// OpenResponseStream submits the transcript and returns the stream of
	// events for the assistant reply. Connection failures surface as a
	// terminal error event on the returned source, not as an error here;
	// the error return is reserved for requests that cannot be attempted at
	// all (missing credentials, invalid configuration).
	OpenResponseStream(ctx context.Context, transcript, conversationID string) (EventSource, error)
}

// MessageStore persists messages for a conversation.
type MessageStore interface {
	CreateMessage(ctx context.Context, conversationID string, msg Message) (Message, error)
	GetMessages(ctx context.Context, conversationID string) ([]Message, error)
	UpdateConversationTitle(ctx context.Context, conversationID, title string) error
}

// ConversationStore manages the conversation list.
type ConversationStore interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	CreateConversation(ctx context.Context, title string) (Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Store is the full persistence surface used by the UI.
type Store interface {
	MessageStore
	ConversationStore
}
