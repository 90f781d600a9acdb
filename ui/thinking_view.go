package ui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	appmodel "thinkchat/model"
)

// renderThinkingIndicator shows the step currently being paced for msg.
func (a AppView) renderThinkingIndicator(msg appmodel.Message) string {
	state := a.session.Thinking(msg.ID)
	if !state.Visible || !state.HasCurrent {
		return ""
	}

	text := state.Current.Text
	if w := a.width - 8; w > 10 {
		text = runewidth.Truncate(text, w, "…")
	}
	line := fmt.Sprintf("%s %s", a.spinner.View(), ThinkingStyle.Render(text))
	if state.Queued > 0 {
		line += DimStyle.Render(fmt.Sprintf(" (+%d)", state.Queued))
	}
	return line
}

// renderSteps draws the disclosure line for a message's steps and, when
// expanded, the revealed steps with any open explanations.
func (a AppView) renderSteps(msg appmodel.Message) string {
	if len(msg.Steps) == 0 {
		return ""
	}
	// Steps stay hidden behind the indicator until pacing has finished
	if a.session.Thinking(msg.ID).Visible {
		return ""
	}

	d := a.session.Disclosure()
	toggle := a.keys.DisplayActionKey("toggle_steps")
	noun := "steps"
	if len(msg.Steps) == 1 {
		noun = "step"
	}

	if !d.Expanded(msg.ID) {
		return DimStyle.Render(fmt.Sprintf("▸ %d reasoning %s (%s)", len(msg.Steps), noun, toggle))
	}

	var b strings.Builder
	b.WriteString(DimStyle.Render(fmt.Sprintf("▾ %d reasoning %s (%s)", len(msg.Steps), noun, toggle)))

	visible := d.Visible(msg.ID, len(msg.Steps))
	for i := 0; i < visible; i++ {
		step := msg.Steps[i]
		marker := "  "
		if d.ExplanationOpen(msg.ID, i) {
			marker = "› "
		}
		b.WriteString("\n" + marker + StepStyle.Render(fmt.Sprintf("%d. %s", i+1, step.Text)))
		if d.ExplanationOpen(msg.ID, i) && step.Explanation != "" {
			width := max(a.width-8, 20)
			b.WriteString("\n" + ExplanationStyle.Width(width).Render(step.Explanation))
		}
	}
	if visible < len(msg.Steps) {
		b.WriteString("\n  " + a.spinner.View())
	} else {
		b.WriteString("\n" + DimStyle.Render(fmt.Sprintf("  %s explains a step", a.keys.DisplayActionKey("next_explanation"))))
	}
	return b.String()
}
