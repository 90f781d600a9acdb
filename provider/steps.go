package provider

import (
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"

	"thinkchat/model"
)

const stepLabelWidth = 60

// StepSplitter cuts a streamed reasoning trace into steps, one per
// paragraph. The step label is the paragraph's first sentence; the
// explanation is the whole paragraph.
type StepSplitter struct {
	buf strings.Builder
}

// Write appends a reasoning chunk and returns the steps it completed.
func (s *StepSplitter) Write(chunk string) []model.Step {
	if chunk == "" {
		return nil
	}
	s.buf.WriteString(chunk)

	text := s.buf.String()
	cut := strings.LastIndex(text, "\n\n")
	if cut < 0 {
		return nil
	}

	s.buf.Reset()
	s.buf.WriteString(text[cut+2:])
	return splitParagraphs(text[:cut])
}

// Flush returns the trailing paragraph, if any.
func (s *StepSplitter) Flush() []model.Step {
	text := s.buf.String()
	s.buf.Reset()
	return splitParagraphs(text)
}

func splitParagraphs(text string) []model.Step {
	var steps []model.Step
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		steps = append(steps, model.Step{Text: StepLabel(para), Explanation: para})
	}
	return steps
}

// StepLabel derives a one-line label from a reasoning paragraph.
func StepLabel(para string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(para), "\n")
	line = strings.TrimLeftFunc(line, func(r rune) bool {
		return r == '#' || r == '*' || r == '-' || r == '>' || unicode.IsSpace(r)
	})
	line = trimEnumeration(line)
	line = strings.ReplaceAll(line, "**", "")

	if i := sentenceEnd(line); i > 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		line = strings.TrimSpace(para)
	}
	return runewidth.Truncate(line, stepLabelWidth, "…")
}

// trimEnumeration strips a leading "1. " or "2) " list marker.
func trimEnumeration(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(s) || (s[i] != '.' && s[i] != ')') || s[i+1] != ' ' {
		return s
	}
	return strings.TrimSpace(s[i+1:])
}

// sentenceEnd returns the index just past the first ". ", "? " or "! ".
func sentenceEnd(s string) int {
	for i := 0; i+1 < len(s); i++ {
		switch s[i] {
		case '.', '?', '!':
			if s[i+1] == ' ' {
				return i + 1
			}
		}
	}
	return -1
}

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ThinkTagFilter separates <think>...</think> sections that reasoning
// models emit inline with their answer. Tags may be split across chunks.
type ThinkTagFilter struct {
	pending string
	inThink bool
}

// Write consumes a content chunk and returns the answer text and reasoning
// text it contained.
func (f *ThinkTagFilter) Write(chunk string) (content, reasoning string) {
	text := f.pending + chunk
	f.pending = ""

	var out, think strings.Builder
	for text != "" {
		tag := thinkOpen
		if f.inThink {
			tag = thinkClose
		}

		if i := strings.Index(text, tag); i >= 0 {
			f.appendTo(&out, &think, text[:i])
			text = text[i+len(tag):]
			f.inThink = !f.inThink
			continue
		}

		// Hold back a suffix that could be the start of the tag.
		keep := partialSuffix(text, tag)
		f.appendTo(&out, &think, text[:len(text)-keep])
		f.pending = text[len(text)-keep:]
		break
	}
	return out.String(), think.String()
}

// Flush returns any held-back text.
func (f *ThinkTagFilter) Flush() (content, reasoning string) {
	rest := f.pending
	f.pending = ""
	if f.inThink {
		return "", rest
	}
	return rest, ""
}

func (f *ThinkTagFilter) appendTo(out, think *strings.Builder, s string) {
	if f.inThink {
		think.WriteString(s)
	} else {
		out.WriteString(s)
	}
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of tag.
func partialSuffix(s, tag string) int {
	n := len(tag) - 1
	if n > len(s) {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
