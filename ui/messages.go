package ui

import (
	"thinkchat/config"
	"thinkchat/model"
)

// Message type aliases - these are defined in the model package
type conversationsListMsg = model.ConversationsListMsg
type conversationCreatedMsg = model.ConversationCreatedMsg
type conversationDeletedMsg = model.ConversationDeletedMsg
type conversationRenamedMsg = model.ConversationRenamedMsg
type markdownRenderedMsg = model.MarkdownRenderedMsg
type searchResultsMsg = model.SearchResultsMsg
type loginResultMsg = model.LoginResultMsg
type flashTickMsg = model.FlashTickMsg
type clipboardCopiedMsg = model.ClipboardCopiedMsg

// configChangedMsg carries a config file reload seen by the watcher
type configChangedMsg struct {
	reload config.Reload
	ok     bool
}

type toastExpiredMsg struct {
	id int
}
