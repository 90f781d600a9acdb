package model

type ConversationsListMsg struct {
	Conversations []Conversation
	Err           error
}

type ConversationCreatedMsg struct {
	Conversation Conversation
	Err          error
}

type ConversationDeletedMsg struct {
	ID  string
	Err error
}

type MarkdownRenderedMsg struct {
	MessageID string
	Rendered  string
}

type SearchResultsMsg struct {
	Query   string
	Matches []SearchMatch
	Err     error
}

type LoginResultMsg struct {
	Email string
	Err   error
}

type FlashTickMsg struct{}

type ClipboardCopiedMsg struct {
	Err error
}

type ConversationRenamedMsg struct {
	ID    string
	Title string
	Err   error
}
