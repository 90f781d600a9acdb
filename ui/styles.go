package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"thinkchat/chat"
)

var (
	dimColor       = lipgloss.Color("7")
	accentColor    = lipgloss.Color("12")
	successColor   = lipgloss.Color("10")
	warningColor   = lipgloss.Color("11")
	dangerColor    = lipgloss.Color("9")
	highlightColor = lipgloss.Color("13")

	// User message style
	UserStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)
	// NO .Background() = transparent!

	// Assistant message style
	AssistantStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	// System/timestamp style
	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	TitleStyle = lipgloss.NewStyle().
			Bold(true)

	StatusStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	HighlightStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Bold(true)

	// Reasoning step shown while the assistant thinks
	ThinkingStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Italic(true)

	StrategyStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true)

	StepStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	ExplanationStyle = lipgloss.NewStyle().
				Foreground(dimColor).
				PaddingLeft(5)

	FailedStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Italic(true)
)

// FormatFooter formats a footer string with alternating keys and descriptions.
// Keys remain default color, descriptions are rendered in assistant blue+bold.
// Usage: FormatFooter("j/k", "Navigate", "Enter", "Select", "Esc", "Close")
func FormatFooter(parts ...string) string {
	descStyle := lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	var result []string
	for i := 0; i < len(parts); i += 2 {
		if i+1 < len(parts) {
			result = append(result, parts[i]+" "+descStyle.Render(parts[i+1]))
		}
	}
	return strings.Join(result, "  ")
}

func levelStyle(level chat.Level) lipgloss.Style {
	switch level {
	case chat.LevelError:
		return lipgloss.NewStyle().Foreground(dangerColor).Bold(true)
	case chat.LevelWarn:
		return lipgloss.NewStyle().Foreground(warningColor)
	default:
		return lipgloss.NewStyle().Foreground(accentColor)
	}
}
