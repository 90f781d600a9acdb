package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"thinkchat/config"
	appmodel "thinkchat/model"
)

func (a AppView) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	kb := a.keys

	switch msg.String() {
	case "esc":
		a.closeAllModals()
		return a, nil
	case "down", "alt+j", kb.GetActionKey("list_down"):
		if a.selectedSearchIdx < len(a.searchResults)-1 {
			a.selectedSearchIdx++
		}
		return a, nil
	case "up", "alt+k", kb.GetActionKey("list_up"):
		if a.selectedSearchIdx > 0 {
			a.selectedSearchIdx--
		}
		return a, nil
	case "enter":
		if len(a.searchResults) == 0 {
			return a, nil
		}
		match := a.searchResults[a.selectedSearchIdx]
		a.closeAllModals()
		a.highlightedMessage = match.MessageID
		if config.DebugLog != nil {
			config.DebugLog.Printf("[UI] jumping to message %s in %s", match.MessageID, match.ConversationID)
		}
		if a.session != nil && a.session.ConversationID() == match.ConversationID {
			return a, a.session.LoadHistory()
		}
		conv := appmodel.Conversation{ID: match.ConversationID, Title: match.ConversationTitle}
		if idx := a.conversationIndex(match.ConversationID); idx >= 0 {
			conv = a.dataModel.Conversations[idx]
		}
		// The loaded history flashes the highlighted message
		cmd := a.openConversation(conv)
		return a, cmd
	}

	before := a.searchInput.Value()
	var cmd tea.Cmd
	a.searchInput, cmd = a.searchInput.Update(msg)
	query := strings.TrimSpace(a.searchInput.Value())
	if a.searchInput.Value() == before {
		return a, cmd
	}
	if query == "" {
		a.searchResults = nil
		a.selectedSearchIdx = 0
		return a, cmd
	}
	return a, tea.Batch(cmd, a.dataModel.SearchMessages(query))
}

func (a AppView) conversationIndex(id string) int {
	for i, c := range a.dataModel.Conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (a AppView) renderSearch() string {
	modalWidth := min(a.width-4, 100)

	modalStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(1, 2)

	title := TitleStyle.Render("🔍 Search All Conversations")

	var resultsView string
	results := a.searchResults
	if len(results) == 0 {
		if strings.TrimSpace(a.searchInput.Value()) == "" {
			resultsView = DimStyle.Render("Type to search across all conversations...")
		} else {
			resultsView = DimStyle.Render("No matches found")
		}
	} else {
		// Border, padding, title, input, count line and footer with their blanks
		fixedOverhead := 12
		linesPerResult := 3
		maxVisible := max((a.height-fixedOverhead-4)/linesPerResult, 1)
		start, end := visibleRange(len(results), a.selectedSearchIdx, maxVisible)

		var b strings.Builder
		b.WriteString(fmt.Sprintf("Found %d matches:\n\n", len(results)))
		if start > 0 {
			b.WriteString(DimStyle.Render(fmt.Sprintf("↑ %d more above", start)) + "\n\n")
		}
		for i := start; i < end; i++ {
			b.WriteString(renderSearchMatch(results[i], i == a.selectedSearchIdx, modalWidth-8) + "\n\n")
		}
		if end < len(results) {
			b.WriteString(DimStyle.Render(fmt.Sprintf("↓ %d more below", len(results)-end)))
		}
		resultsView = b.String()
	}

	footer := FormatFooter("Type", "to search", "↑/↓", "Navigate", "Enter", "Open", "Esc", "Close")

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		"",
		a.searchInput.View(),
		"",
		resultsView,
		"",
		footer,
	)

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center,
		modalStyle.Width(modalWidth).Render(content))
}

func renderSearchMatch(match appmodel.SearchMatch, selected bool, width int) string {
	roleStyle := UserStyle
	if match.Role == appmodel.RoleAssistant {
		roleStyle = AssistantStyle
	}
	title := match.ConversationTitle
	if title == "" {
		title = "Untitled"
	}
	preview := runewidth.Truncate(strings.ReplaceAll(match.Preview, "\n", " "), max(width, 20), "…")

	text := fmt.Sprintf("%s [%s] %s\n  %s",
		roleStyle.Render(title),
		match.Timestamp.Format("Jan 2, 3:04 PM"),
		DimStyle.Render(string(match.Role)),
		preview,
	)
	if selected {
		return SelectedStyle.Render("> " + text)
	}
	return "  " + text
}
