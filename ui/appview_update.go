package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"thinkchat/chat"
	"thinkchat/config"
	appmodel "thinkchat/model"
	"thinkchat/provider"
)

const (
	flashTicks    = 6
	flashInterval = 250 * time.Millisecond
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

		// Reserve space for title (1 line), toasts (1 line), textarea (3 lines), and status bar (1 line)
		a.viewport.Width = a.width
		a.viewport.Height = max(a.height-6, 1)
		a.textarea.SetWidth(a.width)

		a.ready = true
		a.updateViewportContent(true)
		return a, a.renderAll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.thinkingActive() {
			a.updateViewportContent(false)
		}
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)

	case loginResultMsg:
		a.loggingIn = false
		if msg.Err != nil {
			a.loginError = msg.Err.Error()
			return a, nil
		}
		a.showLogin = false
		a.loginError = ""
		a.loginPassword.SetValue("")
		a.textarea.Focus()
		a.addToast(chat.LevelInfo, fmt.Sprintf("Signed in as %s", msg.Email))
		return a, tea.Batch(a.dataModel.FetchConversations(), a.toastExpiry())

	case conversationsListMsg:
		if msg.Err != nil {
			cmd := a.handleStoreError("Failed to load conversations", msg.Err)
			return a, cmd
		}
		a.dataModel.ApplyConversations(msg.Conversations)
		a.applyFilter()
		if a.session == nil {
			if len(a.dataModel.Conversations) == 0 {
				return a, a.dataModel.CreateConversation()
			}
			cmd := a.openConversation(a.dataModel.Conversations[0])
			return a, cmd
		}
		return a, nil

	case conversationCreatedMsg:
		if msg.Err != nil {
			cmd := a.handleStoreError("Failed to create conversation", msg.Err)
			return a, cmd
		}
		a.closeAllModals()
		cmds = append(cmds, a.openConversation(msg.Conversation))
		a.applyFilter()
		if a.pendingPrompt != "" {
			cmds = append(cmds, a.session.SendTurn(a.pendingPrompt))
			a.pendingPrompt = ""
			a.updateViewportContent(true)
		}
		return a, tea.Batch(cmds...)

	case conversationDeletedMsg:
		if msg.Err != nil {
			cmd := a.handleStoreError("Failed to delete conversation", msg.Err)
			return a, cmd
		}
		wasCurrent := a.session != nil && a.session.ConversationID() == msg.ID
		a.dataModel.RemoveConversation(msg.ID)
		a.applyFilter()
		if wasCurrent {
			a.session.Cancel()
			a.session = nil
			a.updateViewportContent(true)
			if len(a.dataModel.Conversations) > 0 {
				cmd := a.openConversation(a.dataModel.Conversations[0])
				return a, cmd
			}
		}
		return a, nil

	case conversationRenamedMsg:
		if msg.Err != nil {
			cmd := a.handleStoreError("Failed to rename conversation", msg.Err)
			return a, cmd
		}
		a.dataModel.ApplyTitle(msg.ID, msg.Title)
		a.applyFilter()
		return a, nil

	case chat.TitleUpdatedMsg:
		if appmodel.NeedsSignIn(msg.Err) {
			cmd := a.handleStoreError("Failed to rename conversation", msg.Err)
			return a, cmd
		}
		if msg.Err == nil {
			a.dataModel.ApplyTitle(msg.ConversationID, msg.Title)
			a.applyFilter()
		}
		// The session reports failures as notifications

	case searchResultsMsg:
		if msg.Query != strings.TrimSpace(a.searchInput.Value()) {
			return a, nil
		}
		if msg.Err != nil {
			a.addToast(chat.LevelError, fmt.Sprintf("Search failed: %v", msg.Err))
			return a, a.toastExpiry()
		}
		a.searchResults = msg.Matches
		a.selectedSearchIdx = 0
		return a, nil

	case markdownRenderedMsg:
		if a.session != nil {
			a.session.SetRendered(msg.MessageID, msg.Rendered)
			a.updateViewportContent(false)
		}
		return a, nil

	case chat.HistoryLoadedMsg:
		if appmodel.NeedsSignIn(msg.Err) {
			cmd := a.handleStoreError("Failed to load messages", msg.Err)
			return a, cmd
		}
		if a.session != nil {
			a.session.Update(msg)
			a.updateViewportContent(true)
			cmds = append(cmds, a.renderAll(), a.flushNotifications())
			if a.highlightedMessage != "" {
				cmds = append(cmds, a.flash())
			}
		}
		return a, tea.Batch(cmds...)

	case chat.TurnFinishedMsg:
		if appmodel.NeedsSignIn(msg.Err) {
			cmd := a.handleStoreError("Response failed", msg.Err)
			return a, cmd
		}
		if a.session != nil && a.session.ConversationID() == msg.ConversationID {
			if m, ok := a.session.Message(msg.MessageID); ok && m.Content != "" {
				cmds = append(cmds, a.renderMarkdownAsync(m.ID, m.Content))
			}
			a.updateViewportContent(true)
		}
		return a, tea.Batch(cmds...)

	case provider.PingBackendMsg:
		if msg.Err != nil {
			a.addToast(chat.LevelWarn, fmt.Sprintf("%s is not reachable: %v", msg.Kind.DisplayName(), msg.Err))
			return a, a.toastExpiry()
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[UI] %s reachable with model %s", msg.Kind, msg.Model)
		}
		return a, nil

	case clipboardCopiedMsg:
		if msg.Err != nil {
			a.addToast(chat.LevelError, fmt.Sprintf("Copy failed: %v", msg.Err))
		} else {
			a.addToast(chat.LevelInfo, "Copied last response")
		}
		return a, a.toastExpiry()

	case configChangedMsg:
		if !msg.ok {
			return a, nil
		}
		a.applyConfig(msg.reload)
		return a, tea.Batch(a.waitForConfigChange(), a.toastExpiry())

	case toastExpiredMsg:
		a.expireToast(msg.id)
		return a, nil

	case flashTickMsg:
		if a.highlightFlash > 0 {
			a.highlightFlash--
			a.updateViewportContent(false)
			return a, tea.Tick(flashInterval, func(time.Time) tea.Msg { return flashTickMsg{} })
		}
		a.highlightedMessage = ""
		a.updateViewportContent(false)
		return a, nil
	}

	// Everything else belongs to the chat session: stream events, step
	// pacing ticks, reveal ticks and persistence results.
	if a.session != nil {
		cmd := a.session.Update(msg)
		a.updateViewportContent(a.atBottom())
		notes := a.flushNotifications()
		return a, tea.Batch(cmd, notes)
	}
	return a, nil
}

func (a AppView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	kb := a.keys

	// Always-global shortcuts
	switch msg.String() {
	case "ctrl+c", kb.GetActionKey("quit"):
		if config.DebugLog != nil {
			config.DebugLog.Printf("[UI] quit requested")
		}
		if a.session != nil {
			a.session.Cancel()
		}
		if a.watcher != nil {
			a.watcher.Close()
		}
		a.dataModel.Quitting = true
		return a, tea.Quit
	}

	if a.showLogin {
		return a.handleLoginKey(msg)
	}

	if msg.String() == kb.GetActionKey("help") {
		a.showHelp = !a.showHelp
		return a, nil
	}
	if a.showHelp {
		if msg.String() == "esc" {
			a.showHelp = false
		}
		return a, nil
	}
	if a.showConversations {
		return a.handleConversationListKey(msg)
	}
	if a.showSearch {
		return a.handleSearchKey(msg)
	}

	return a.handleChatKey(msg)
}

func (a AppView) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	kb := a.keys

	switch msg.String() {
	case "enter":
		return a.send()

	case kb.GetActionKey("cancel_response"):
		if a.session != nil && a.session.Processing() {
			cmd := a.session.Cancel()
			a.updateViewportContent(true)
			notes := a.flushNotifications()
			return a, tea.Batch(cmd, notes)
		}
		return a, nil

	case kb.GetActionKey("new_conversation"):
		return a, a.dataModel.CreateConversation()

	case kb.GetActionKey("conversations"):
		a.showConversations = true
		a.applyFilter()
		a.selectedConvIdx = a.currentConversationIndex()
		a.textarea.Blur()
		return a, nil

	case kb.GetActionKey("rename"):
		if a.dataModel.Current == nil {
			return a, nil
		}
		a.showConversations = true
		a.applyFilter()
		a.selectedConvIdx = a.currentConversationIndex()
		a.textarea.Blur()
		cmd := a.startRename(*a.dataModel.Current)
		return a, cmd

	case kb.GetActionKey("search"):
		if a.dataModel.Searcher == nil {
			a.addToast(chat.LevelInfo, "Search is only available for local conversations")
			return a, a.toastExpiry()
		}
		a.showSearch = true
		a.textarea.Blur()
		a.searchInput.SetValue("")
		a.searchResults = nil
		cmd := a.searchInput.Focus()
		return a, cmd

	case kb.GetActionKey("toggle_steps"):
		m, ok := a.focusedMessage()
		if !ok {
			return a, nil
		}
		a.explanationIdx = 0
		cmd := a.session.ToggleSteps(m.ID)
		a.updateViewportContent(false)
		return a, cmd

	case kb.GetActionKey("next_explanation"):
		a.nextExplanation()
		a.updateViewportContent(false)
		return a, nil

	case kb.GetActionKey("copy_last"):
		content := a.lastAssistantContent()
		if content == "" {
			return a, nil
		}
		return a, func() tea.Msg {
			return clipboardCopiedMsg{Err: clipboard.WriteAll(content)}
		}

	case kb.GetActionKey("clear_input"):
		a.textarea.Reset()
		return a, nil

	case kb.GetActionKey("scroll_down"):
		a.viewport.ScrollDown(1)
		return a, nil
	case kb.GetActionKey("scroll_up"):
		a.viewport.ScrollUp(1)
		return a, nil
	case kb.GetActionKey("half_page_down"):
		a.viewport.HalfPageDown()
		return a, nil
	case kb.GetActionKey("half_page_up"):
		a.viewport.HalfPageUp()
		return a, nil
	case kb.GetActionKey("scroll_to_top"):
		a.viewport.GotoTop()
		return a, nil
	case kb.GetActionKey("scroll_to_bottom"):
		a.viewport.GotoBottom()
		return a, nil
	case "pgdown":
		a.viewport.PageDown()
		return a, nil
	case "pgup":
		a.viewport.PageUp()
		return a, nil
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) send() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.textarea.Value())
	if text == "" {
		return a, nil
	}

	if a.session == nil {
		// No conversation yet: create one and send once it exists
		a.pendingPrompt = text
		a.textarea.Reset()
		return a, a.dataModel.CreateConversation()
	}

	cmd := a.session.SendTurn(text)
	if cmd == nil {
		// A reply is still streaming; keep the draft
		return a, nil
	}
	a.textarea.Reset()
	a.updateViewportContent(true)
	return a, cmd
}

// nextExplanation moves the explanation cursor to the next step of the
// expanded list, closing the one open before it.
func (a *AppView) nextExplanation() {
	m, ok := a.focusedMessage()
	if !ok {
		return
	}
	d := a.session.Disclosure()
	if !d.Expanded(m.ID) {
		return
	}
	visible := d.Visible(m.ID, len(m.Steps))
	if visible == 0 {
		return
	}

	if d.ExplanationOpen(m.ID, a.explanationIdx) {
		a.session.ToggleExplanation(m.ID, a.explanationIdx)
		a.explanationIdx = (a.explanationIdx + 1) % visible
	}
	a.session.ToggleExplanation(m.ID, a.explanationIdx)
}

// handleStoreError surfaces a failed store call. An expired or missing
// server session sends the user back to the login form.
func (a *AppView) handleStoreError(prefix string, err error) tea.Cmd {
	if appmodel.NeedsSignIn(err) {
		a.showLogin = true
		a.loginError = err.Error()
		if a.session != nil {
			a.session.Cancel()
			a.session = nil
		}
		return a.focusLogin()
	}
	a.addToast(chat.LevelError, fmt.Sprintf("%s: %v", prefix, err))
	return a.toastExpiry()
}

func (a AppView) thinkingActive() bool {
	if a.session == nil {
		return false
	}
	if a.session.Processing() {
		return true
	}
	for _, m := range a.session.Messages() {
		if a.session.Thinking(m.ID).Visible {
			return true
		}
	}
	return false
}

func (a AppView) atBottom() bool {
	return a.viewport.AtBottom() || a.viewport.TotalLineCount() <= a.viewport.Height
}

func (a *AppView) flash() tea.Cmd {
	a.highlightFlash = flashTicks
	return tea.Tick(flashInterval, func(time.Time) tea.Msg { return flashTickMsg{} })
}

func (a AppView) currentConversationIndex() int {
	if a.dataModel.Current == nil {
		return 0
	}
	for i, c := range a.filteredConversations {
		if c.ID == a.dataModel.Current.ID {
			return i
		}
	}
	return 0
}
