package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"thinkchat/chat"
	"thinkchat/config"
	appmodel "thinkchat/model"
	"thinkchat/provider"
)

type AppView struct {
	// Reference to core data model
	dataModel *appmodel.Model
	keys      *config.KeyBindingsConfig
	watcher   *config.Watcher

	// Session for the open conversation; nil until one is opened
	session *chat.Session

	// UI Components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	// Window state
	width  int
	height int
	ready  bool

	showHelp bool

	// Conversation list
	showConversations     bool
	filteredConversations []appmodel.Conversation
	selectedConvIdx       int
	filterMode            bool
	filterInput           textinput.Model
	renameMode            bool
	renameTarget          string
	renameInput           textinput.Model
	confirmDelete         *appmodel.Conversation

	// Prompt typed before any conversation existed; sent once one is created
	pendingPrompt string

	// Search across conversations
	showSearch        bool
	searchInput       textinput.Model
	searchResults     []appmodel.SearchMatch
	selectedSearchIdx int

	// Login form
	showLogin     bool
	loginEmail    textinput.Model
	loginPassword textinput.Model
	loginFocus    int
	loginError    string
	loggingIn     bool

	// Explanation cursor for the expanded step list
	explanationIdx int

	highlightedMessage string
	highlightFlash     int

	toasts    []toast
	nextToast int
}

func NewAppView(dataModel *appmodel.Model, keys *config.KeyBindingsConfig, watcher *config.Watcher) AppView {
	if keys == nil {
		keys = config.DefaultKeybindings()
	}

	ta := textarea.New()
	ta.Placeholder = "Ask something..."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)

	// Alt+Enter for newline, Enter alone sends (handled separately)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ThinkingStyle

	filterInput := textinput.New()
	filterInput.Prompt = "Filter: "
	filterInput.CharLimit = 64

	renameInput := textinput.New()
	renameInput.CharLimit = 100

	searchInput := textinput.New()
	searchInput.Prompt = "Search: "
	searchInput.CharLimit = 100

	email := textinput.New()
	email.Prompt = "Email:    "
	email.CharLimit = 254

	password := textinput.New()
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return AppView{
		dataModel:     dataModel,
		keys:          keys,
		watcher:       watcher,
		textarea:      ta,
		viewport:      viewport.New(0, 0),
		spinner:       sp,
		filterInput:   filterInput,
		renameInput:   renameInput,
		searchInput:   searchInput,
		loginEmail:    email,
		loginPassword: password,
		showLogin:     dataModel.NeedsLogin(),
	}
}

func (a AppView) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textarea.Blink,
		a.spinner.Tick,
		a.waitForConfigChange(),
	}

	if a.showLogin {
		cmds = append(cmds, a.focusLogin())
	} else {
		cmds = append(cmds, a.dataModel.FetchConversations())
	}

	// Direct backends are checked up front so a stopped Ollama shows early
	if b, ok := a.dataModel.Backend.(provider.Backend); ok {
		cmds = append(cmds, provider.PingBackend(b, a.dataModel.Config.BackendKind()))
	}

	return tea.Batch(cmds...)
}

func (a AppView) View() string {
	if !a.ready {
		return "Loading thinkchat..."
	}

	// Modal rendering order (top to bottom layers):
	// 1. Login (nothing else works until signed in)
	// 2. Help
	// 3. Conversation list
	// 4. Search
	if a.showLogin {
		return a.renderLogin()
	}
	if a.showHelp {
		return a.renderHelpModal(a.width, a.height)
	}
	if a.showConversations {
		return a.renderConversationList()
	}
	if a.showSearch {
		return a.renderSearch()
	}

	// Title bar - "thinkchat - Backend - Conversation"
	appText := AssistantStyle.Render("thinkchat")
	backendText := TitleStyle.Render(fmt.Sprintf(" - %s", a.backendName()))
	title := "New Conversation"
	if a.dataModel.Current != nil && a.dataModel.Current.Title != "" {
		title = a.dataModel.Current.Title
	}
	convText := UserStyle.Render(fmt.Sprintf(" - %s", title))
	titleBar := appText + backendText + convText
	if a.session != nil && a.session.Processing() {
		titleBar += " " + a.spinner.View()
	}

	descStyle := lipgloss.NewStyle().Foreground(successColor).Bold(true)
	statusBar := StatusStyle.Render(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  Enter %s",
		a.keys.DisplayActionKey("quit"), descStyle.Render("Quit"),
		a.keys.DisplayActionKey("conversations"), descStyle.Render("Conversations"),
		a.keys.DisplayActionKey("toggle_steps"), descStyle.Render("Steps"),
		a.keys.DisplayActionKey("search"), descStyle.Render("Search"),
		a.keys.DisplayActionKey("help"), descStyle.Render("Help"),
		descStyle.Render("Send"),
	))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleBar,
		a.renderToasts(),
		a.viewport.View(),
		a.textarea.View(),
		statusBar,
	)
}

func (a AppView) backendName() string {
	if b, ok := a.dataModel.Backend.(provider.Backend); ok {
		return b.GetDisplayName()
	}
	return a.dataModel.Config.BackendKind().DisplayName()
}

// openConversation replaces the session with one for conv and loads its
// history. A turn in flight for the previous conversation is cancelled.
func (a *AppView) openConversation(conv appmodel.Conversation) tea.Cmd {
	if a.session != nil {
		a.session.Cancel()
	}
	for i := range a.dataModel.Conversations {
		if a.dataModel.Conversations[i].ID == conv.ID {
			a.dataModel.Current = &a.dataModel.Conversations[i]
		}
	}
	if a.dataModel.Current == nil || a.dataModel.Current.ID != conv.ID {
		a.dataModel.Conversations = append([]appmodel.Conversation{conv}, a.dataModel.Conversations...)
		a.dataModel.Current = &a.dataModel.Conversations[0]
	}

	a.session = chat.NewSession(conv.ID, a.dataModel.Store, a.dataModel.Backend, chat.TimingFromConfig(a.dataModel.Config))
	a.explanationIdx = 0
	a.updateViewportContent(true)

	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] opened conversation %s", conv.ID)
	}
	return a.session.LoadHistory()
}

func (a *AppView) closeAllModals() {
	a.showHelp = false
	a.showConversations = false
	a.showSearch = false

	a.filterMode = false
	a.renameMode = false
	a.confirmDelete = nil

	if a.filterInput.Focused() {
		a.filterInput.Blur()
	}
	if a.renameInput.Focused() {
		a.renameInput.Blur()
	}
	if a.searchInput.Focused() {
		a.searchInput.Blur()
	}
	a.textarea.Focus()
}

// focusedMessage is the assistant message the step keys act on: the most
// recent one that has steps.
func (a AppView) focusedMessage() (appmodel.Message, bool) {
	if a.session == nil {
		return appmodel.Message{}, false
	}
	msgs := a.session.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == appmodel.RoleAssistant && len(msgs[i].Steps) > 0 {
			return msgs[i], true
		}
	}
	return appmodel.Message{}, false
}

func (a AppView) lastAssistantContent() string {
	if a.session == nil {
		return ""
	}
	msgs := a.session.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == appmodel.RoleAssistant && strings.TrimSpace(msgs[i].Content) != "" {
			return msgs[i].Content
		}
	}
	return ""
}
