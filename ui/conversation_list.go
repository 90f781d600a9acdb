package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	appmodel "thinkchat/model"
)

// filterConversations returns the conversations whose titles fuzzy-match
// query, best match first. An empty query returns all of them.
func filterConversations(convs []appmodel.Conversation, query string) []appmodel.Conversation {
	if query == "" {
		return convs
	}
	targets := make([]string, len(convs))
	for i, c := range convs {
		targets[i] = c.Title
	}
	matches := fuzzy.Find(query, targets)
	filtered := make([]appmodel.Conversation, len(matches))
	for i, match := range matches {
		filtered[i] = convs[match.Index]
	}
	return filtered
}

func (a *AppView) applyFilter() {
	query := ""
	if a.filterMode {
		query = a.filterInput.Value()
	}
	a.filteredConversations = filterConversations(a.dataModel.Conversations, query)
	if a.selectedConvIdx >= len(a.filteredConversations) {
		a.selectedConvIdx = max(len(a.filteredConversations)-1, 0)
	}
}

func (a AppView) selectedConversation() (appmodel.Conversation, bool) {
	if a.selectedConvIdx < 0 || a.selectedConvIdx >= len(a.filteredConversations) {
		return appmodel.Conversation{}, false
	}
	return a.filteredConversations[a.selectedConvIdx], true
}

func (a *AppView) startRename(conv appmodel.Conversation) tea.Cmd {
	a.renameMode = true
	a.renameTarget = conv.ID
	a.renameInput.SetValue(conv.Title)
	a.renameInput.CursorEnd()
	return a.renameInput.Focus()
}

func (a AppView) handleConversationListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	kb := a.keys

	if a.confirmDelete != nil {
		switch msg.String() {
		case "y", "Y":
			id := a.confirmDelete.ID
			a.confirmDelete = nil
			return a, a.dataModel.DeleteConversation(id)
		case "n", "N", "esc":
			a.confirmDelete = nil
		}
		return a, nil
	}

	if a.renameMode {
		switch msg.String() {
		case "enter":
			title := strings.TrimSpace(a.renameInput.Value())
			a.renameMode = false
			a.renameInput.Blur()
			if title == "" {
				return a, nil
			}
			// The open conversation is renamed through its session
			if a.session != nil && a.session.ConversationID() == a.renameTarget {
				return a, a.session.Rename(title)
			}
			return a, a.dataModel.RenameConversation(a.renameTarget, title)
		case "esc":
			a.renameMode = false
			a.renameInput.Blur()
			return a, nil
		case kb.GetActionKey("clear_input"):
			a.renameInput.SetValue("")
			return a, nil
		}
		var cmd tea.Cmd
		a.renameInput, cmd = a.renameInput.Update(msg)
		return a, cmd
	}

	if a.filterMode {
		switch msg.String() {
		case "esc":
			a.filterMode = false
			a.filterInput.Blur()
			a.applyFilter()
			return a, nil
		case "enter":
			return a.openSelected()
		case kb.GetActionKey("list_down"), kb.GetActionKey("scroll_down"):
			if a.selectedConvIdx < len(a.filteredConversations)-1 {
				a.selectedConvIdx++
			}
			return a, nil
		case kb.GetActionKey("list_up"), kb.GetActionKey("scroll_up"):
			if a.selectedConvIdx > 0 {
				a.selectedConvIdx--
			}
			return a, nil
		}

		var cmd tea.Cmd
		a.filterInput, cmd = a.filterInput.Update(msg)
		a.applyFilter()
		return a, cmd
	}

	switch msg.String() {
	case "/":
		a.filterMode = true
		a.filterInput.SetValue("")
		a.applyFilter()
		cmd := a.filterInput.Focus()
		return a, cmd
	case "esc", kb.GetActionKey("conversations"):
		a.closeAllModals()
		return a, nil
	case "j", kb.GetActionKey("list_down"):
		if a.selectedConvIdx < len(a.filteredConversations)-1 {
			a.selectedConvIdx++
		}
		return a, nil
	case "k", kb.GetActionKey("list_up"):
		if a.selectedConvIdx > 0 {
			a.selectedConvIdx--
		}
		return a, nil
	case "enter":
		return a.openSelected()
	case "n", kb.GetActionKey("new_conversation"):
		return a, a.dataModel.CreateConversation()
	case "r", kb.GetActionKey("rename"):
		if conv, ok := a.selectedConversation(); ok {
			cmd := a.startRename(conv)
			return a, cmd
		}
	case kb.GetActionKey("delete"):
		if conv, ok := a.selectedConversation(); ok {
			a.confirmDelete = &conv
		}
	}
	return a, nil
}

func (a AppView) openSelected() (tea.Model, tea.Cmd) {
	conv, ok := a.selectedConversation()
	if !ok {
		return a, nil
	}
	a.closeAllModals()
	if a.session != nil && a.session.ConversationID() == conv.ID {
		return a, nil
	}
	cmd := a.openConversation(conv)
	return a, cmd
}

func (a AppView) renderConversationList() string {
	modalWidth := min(a.width-10, 90)
	modalHeight := a.height - 6

	if a.confirmDelete != nil {
		warningText := lipgloss.NewStyle().Foreground(dangerColor).Render("This action cannot be undone.")
		return RenderConfirmationModal(ConfirmationState{
			Active:  true,
			Title:   "⚠ Delete Conversation",
			Message: fmt.Sprintf("Are you sure you want to delete:\n\n\"%s\"\n\n%s", a.confirmDelete.Title, warningText),
		}, a.width, a.height)
	}

	titleSection := lipgloss.NewStyle().
		Bold(true).
		Align(lipgloss.Center).
		Width(modalWidth).
		Render("Conversations")

	var header string
	total := len(a.dataModel.Conversations)
	switch {
	case a.filterMode:
		header = a.filterInput.View()
	case total == len(a.filteredConversations):
		header = fmt.Sprintf("%d conversations", total)
	default:
		header = fmt.Sprintf("%d of %d conversations", len(a.filteredConversations), total)
	}
	headerSection := lipgloss.NewStyle().
		Foreground(dimColor).
		Align(lipgloss.Center).
		Width(modalWidth).
		BorderTop(true).
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(header)

	currentID := ""
	if a.dataModel.Current != nil {
		currentID = a.dataModel.Current.ID
	}

	var lines []string
	list := a.filteredConversations
	if len(list) == 0 {
		emptyMsg := "No conversations yet. Press n to start one!"
		if a.filterMode {
			emptyMsg = "No matches found"
		}
		lines = append(lines, lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true).
			Align(lipgloss.Center).
			Width(modalWidth).
			Render(emptyMsg))
	} else {
		start, end := visibleRange(len(list), a.selectedConvIdx, max(modalHeight-8, 1))
		for i := start; i < end; i++ {
			lines = append(lines, a.renderConversationLine(list[i], i == a.selectedConvIdx, list[i].ID == currentID, modalWidth))
		}
	}

	emptyLine := strings.Repeat(" ", modalWidth)
	lines = append([]string{emptyLine}, lines...)
	lines = append(lines, emptyLine)

	var footerText string
	switch {
	case a.renameMode:
		footerText = FormatFooter(a.keys.DisplayActionKey("clear_input"), "Clear", "Enter", "Save", "Esc", "Cancel")
	case a.filterMode:
		footerText = FormatFooter("Type", "to filter", "↑/↓", "Navigate", "Enter", "Open", "Esc", "Cancel")
	default:
		footerText = FormatFooter("/", "Filter", "j/k", "Navigate", "Enter", "Open", "n", "New", "r", "Rename", a.keys.DisplayActionKey("delete"), "Delete", "Esc", "Close")
	}
	footerSection := lipgloss.NewStyle().
		Align(lipgloss.Center).
		Width(modalWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(footerText)

	sections := append([]string{titleSection, headerSection}, lines...)
	sections = append(sections, footerSection)

	return lipgloss.NewStyle().
		Width(a.width).
		Height(a.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(strings.Join(sections, "\n"))
}

func (a AppView) renderConversationLine(conv appmodel.Conversation, selected, current bool, width int) string {
	indicator := "  "
	if selected {
		indicator = "▶ "
	}

	var name string
	if a.renameMode && selected {
		name = lipgloss.NewStyle().Foreground(accentColor).Bold(true).Render(a.renameInput.View())
	} else {
		name = runewidth.Truncate(conv.Title, max(width-30, 10), "...")
		switch {
		case selected:
			name = lipgloss.NewStyle().Foreground(successColor).Bold(true).Render(name)
		case current:
			name = lipgloss.NewStyle().Foreground(accentColor).Bold(true).Render(name)
		}
	}
	if current && !a.renameMode {
		name += " " + lipgloss.NewStyle().Foreground(accentColor).Render("(current)")
	}

	left := indicator + name
	right := formatTimeAgo(conv.CreatedAt)
	if selected {
		right = lipgloss.NewStyle().Foreground(successColor).Bold(true).Render(right)
	}

	spacing := max(width-4-lipgloss.Width(left)-lipgloss.Width(right), 2)
	return lipgloss.NewStyle().
		Width(width).
		Render(fmt.Sprintf("  %s%s%s  ", left, strings.Repeat(" ", spacing), right))
}

// visibleRange picks the window of a scrolled list that keeps selected
// near the middle.
func visibleRange(n, selected, maxLines int) (int, int) {
	if n <= maxLines {
		return 0, n
	}
	switch {
	case selected < maxLines/2:
		return 0, maxLines
	case selected >= n-maxLines/2:
		return n - maxLines, n
	default:
		start := selected - maxLines/2
		return start, start + maxLines
	}
}

// formatTimeAgo formats a time as a relative string (e.g., "2h ago", "3d ago")
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return fmt.Sprintf("%dm ago", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(duration.Hours()))
	case duration < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(duration.Hours()/24))
	case duration < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(duration.Hours()/24/7))
	default:
		return fmt.Sprintf("%dmo ago", int(duration.Hours()/24/30))
	}
}
