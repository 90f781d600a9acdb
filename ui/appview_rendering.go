package ui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	tea "github.com/charmbracelet/bubbletea"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"thinkchat/config"
	appmodel "thinkchat/model"
)

// Pre-compiled regex patterns for better performance
var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s]+)`)
)

const codeBar = "┃"

func (a *AppView) updateViewportContent(gotoBottom bool) {
	if a.session == nil || len(a.session.Messages()) == 0 {
		a.viewport.SetContent(DimStyle.Render("No messages yet. Ask something to start."))
		return
	}

	var content strings.Builder
	for _, msg := range a.session.Messages() {
		highlightPrefix := ""
		if msg.ID == a.highlightedMessage && a.highlightFlash%2 == 1 {
			highlightPrefix = HighlightStyle.Render(">>> ")
		}
		timestamp := DimStyle.Render(msg.Timestamp.Format("[15:04]"))

		if msg.Role == appmodel.RoleUser {
			body := msg.Rendered
			if body == "" {
				body = msg.Content
			}
			content.WriteString(formatUserMessage(highlightPrefix, timestamp, UserStyle.Render("You"), body))
			continue
		}

		content.WriteString(a.formatAssistantMessage(highlightPrefix, timestamp, msg))
	}

	a.viewport.SetContent(content.String())
	if gotoBottom {
		a.viewport.GotoBottom()
	}
}

func (a AppView) formatAssistantMessage(highlightPrefix, timestamp string, msg appmodel.Message) string {
	var b strings.Builder

	header := fmt.Sprintf("%s%s %s", highlightPrefix, timestamp, AssistantStyle.Render("Assistant"))
	if msg.Strategy != "" {
		header += " " + StrategyStyle.Render("· "+msg.Strategy)
	}
	b.WriteString(header + "\n")

	if indicator := a.renderThinkingIndicator(msg); indicator != "" {
		b.WriteString(indicator + "\n")
	}
	if steps := a.renderSteps(msg); steps != "" {
		b.WriteString(steps + "\n")
	}

	switch {
	case msg.Failed:
		b.WriteString(FailedStyle.Render("No response. The request failed."))
	case msg.Rendered != "":
		b.WriteString(msg.Rendered)
	case msg.Content != "":
		body := msg.Content
		if a.session.Processing() && a.isStreaming(msg.ID) {
			body += "▋"
		}
		b.WriteString(body)
	case a.session.Processing() && a.isStreaming(msg.ID):
		b.WriteString(a.spinner.View())
	}
	b.WriteString("\n\n")
	return b.String()
}

// isStreaming reports whether id is the reply currently being written,
// which is always the last message.
func (a AppView) isStreaming(id string) bool {
	msgs := a.session.Messages()
	return len(msgs) > 0 && msgs[len(msgs)-1].ID == id
}

func formatUserMessage(highlightPrefix, timestamp, role, content string) string {
	bar := UserStyle.Render("┃")

	var result strings.Builder
	result.WriteString(fmt.Sprintf("%s%s %s %s\n", highlightPrefix, bar, timestamp, role))
	for _, line := range strings.Split(content, "\n") {
		result.WriteString(fmt.Sprintf("%s %s\n", bar, line))
	}
	result.WriteString("\n")
	return result.String()
}

// renderAll renders every stored message that has no rendered form yet.
func (a AppView) renderAll() tea.Cmd {
	if a.session == nil || a.width == 0 {
		return nil
	}
	var cmds []tea.Cmd
	for _, m := range a.session.Messages() {
		if m.Role == appmodel.RoleAssistant && m.Rendered == "" && m.Content != "" {
			cmds = append(cmds, a.renderMarkdownAsync(m.ID, m.Content))
		}
	}
	return tea.Batch(cmds...)
}

func (a AppView) renderMarkdownAsync(messageID, content string) tea.Cmd {
	width := a.width
	return func() tea.Msg {
		startTime := time.Now()
		rendered := renderMarkdown(content, width)
		if config.DebugLog != nil {
			config.DebugLog.Printf("[UI] markdown for %s rendered in %v (%d chars)", messageID, time.Since(startTime), len(content))
		}
		return markdownRenderedMsg{MessageID: messageID, Rendered: rendered}
	}
}

func renderMarkdown(content string, width int) string {
	// Strip markdown link syntax [text](url) -> url so links show as plain URLs
	content = mdLinkRegex.ReplaceAllString(content, "$2")

	// Autolink stays off so terminals handle URL detection themselves
	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	r := markdown.NewRenderer(max(width-4, 20), 0)
	doc := p.Parse([]byte(content))
	rendered := gomarkdown.Render(doc, r)

	return postProcessMarkdown(string(rendered), width)
}

func postProcessMarkdown(rendered string, width int) string {
	// Inline code: blue background -> red text
	rendered = inlineCodeRegex.ReplaceAllString(rendered, "\x1b[31m$1\x1b[0m")
	rendered = colorURLs(rendered)
	return frameCodeBlocks(rendered, width)
}

func colorURLs(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		// Code block lines keep their highlighting
		if !strings.Contains(line, codeBar) {
			lines[i] = urlRegex.ReplaceAllString(line, "\x1b[31m$1\x1b[0m")
		}
	}
	return strings.Join(lines, "\n")
}

func frameCodeBlocks(s string, width int) string {
	darkGray := "\x1b[90m"
	reset := "\x1b[0m"
	lineLen := max(width-4, 10)

	var result []string
	inCodeBlock := false
	closeBlock := func() {
		result = append(result, "", darkGray+strings.Repeat("━", lineLen)+reset, "")
		inCodeBlock = false
	}

	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, codeBar) {
			if !inCodeBlock {
				inCodeBlock = true
				label := "[code]"
				left := (lineLen - len(label)) / 2
				right := lineLen - len(label) - left
				result = append(result, "", darkGray+strings.Repeat("━", left)+reset+label+darkGray+strings.Repeat("━", right)+reset, "")
			}
			result = append(result, stripCodeBlockPrefix(line))
			continue
		}
		if inCodeBlock {
			closeBlock()
		}
		result = append(result, line)
	}
	if inCodeBlock {
		closeBlock()
	}
	return strings.Join(result, "\n")
}

func stripCodeBlockPrefix(line string) string {
	idx := strings.Index(line, codeBar)
	if idx < 0 {
		return line
	}
	rest := line[idx+len(codeBar):]
	return strings.TrimPrefix(rest, " ")
}
