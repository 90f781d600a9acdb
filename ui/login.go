package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	loginFocusEmail = iota
	loginFocusPassword
)

// focusLogin shows the sign-in form with the cursor in the email field.
func (a *AppView) focusLogin() tea.Cmd {
	a.showLogin = true
	a.loggingIn = false
	a.loginFocus = loginFocusEmail
	a.loginPassword.Blur()
	a.textarea.Blur()
	return a.loginEmail.Focus()
}

func (a AppView) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.loggingIn {
		return a, nil
	}

	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		cmd := a.switchLoginFocus()
		return a, cmd
	case "enter":
		email := strings.TrimSpace(a.loginEmail.Value())
		password := a.loginPassword.Value()
		if a.loginFocus == loginFocusEmail && password == "" {
			cmd := a.switchLoginFocus()
			return a, cmd
		}
		if email == "" || password == "" {
			a.loginError = "Email and password are required"
			return a, nil
		}
		a.loginError = ""
		a.loggingIn = true
		return a, a.dataModel.Login(email, password)
	}

	var cmd tea.Cmd
	if a.loginFocus == loginFocusEmail {
		a.loginEmail, cmd = a.loginEmail.Update(msg)
	} else {
		a.loginPassword, cmd = a.loginPassword.Update(msg)
	}
	return a, cmd
}

func (a *AppView) switchLoginFocus() tea.Cmd {
	if a.loginFocus == loginFocusEmail {
		a.loginFocus = loginFocusPassword
		a.loginEmail.Blur()
		return a.loginPassword.Focus()
	}
	a.loginFocus = loginFocusEmail
	a.loginPassword.Blur()
	return a.loginEmail.Focus()
}

func (a AppView) renderLogin() string {
	modalWidth := 60
	left := lipgloss.NewStyle().Width(modalWidth).Align(lipgloss.Left)

	lines := []string{
		left.Render(DimStyle.Render("Sign in to " + a.backendName())),
		"",
		left.Render(a.loginEmail.View()),
		left.Render(a.loginPassword.View()),
	}

	switch {
	case a.loggingIn:
		lines = append(lines, "", left.Render(a.spinner.View()+" Signing in..."))
	case a.loginError != "":
		lines = append(lines, "", left.Render(lipgloss.NewStyle().Foreground(dangerColor).Render(wordWrap(a.loginError, modalWidth))))
	}

	footer := FormatFooter("Tab", "Switch field", "Enter", "Sign in", a.keys.DisplayActionKey("quit"), "Quit")
	return RenderThreeSectionModal("🔐 Sign In", lines, footer, ModalTypeInfo, modalWidth, a.width, a.height)
}

// wordWrap wraps text to fit within the specified width while preserving newlines
func wordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}

	var result strings.Builder
	paragraphs := strings.Split(text, "\n")
	for i, paragraph := range paragraphs {
		words := strings.Fields(paragraph)
		if len(words) > 0 {
			currentLine := words[0]
			for _, word := range words[1:] {
				if len(currentLine)+1+len(word) <= width {
					currentLine += " " + word
				} else {
					result.WriteString(currentLine + "\n")
					currentLine = word
				}
			}
			result.WriteString(currentLine)
		}
		if i < len(paragraphs)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}
