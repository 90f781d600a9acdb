package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"thinkchat/chat"
)

const (
	toastLifetime = 4 * time.Second
	maxToasts     = 3
)

type toast struct {
	id    int
	level chat.Level
	text  string
}

func (a *AppView) addToast(level chat.Level, text string) {
	a.nextToast++
	a.toasts = append(a.toasts, toast{id: a.nextToast, level: level, text: text})
	if len(a.toasts) > maxToasts {
		a.toasts = a.toasts[len(a.toasts)-maxToasts:]
	}
}

// toastExpiry schedules removal of the most recent toast.
func (a AppView) toastExpiry() tea.Cmd {
	id := a.nextToast
	return tea.Tick(toastLifetime, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

func (a *AppView) expireToast(id int) {
	kept := a.toasts[:0]
	for _, t := range a.toasts {
		if t.id != id {
			kept = append(kept, t)
		}
	}
	a.toasts = kept
}

// flushNotifications moves the session's notifications into toasts.
func (a *AppView) flushNotifications() tea.Cmd {
	if a.session == nil {
		return nil
	}
	var cmds []tea.Cmd
	for _, n := range a.session.TakeNotifications() {
		a.addToast(n.Level, n.Text)
		cmds = append(cmds, a.toastExpiry())
	}
	return tea.Batch(cmds...)
}

// renderToasts draws the newest toast on the line under the title bar.
func (a AppView) renderToasts() string {
	if len(a.toasts) == 0 {
		return ""
	}
	t := a.toasts[len(a.toasts)-1]
	text := strings.ReplaceAll(t.text, "\n", " ")
	if len(a.toasts) > 1 {
		text += DimStyle.Render(fmt.Sprintf(" (+%d)", len(a.toasts)-1))
	}
	return levelStyle(t.level).Render(text)
}
