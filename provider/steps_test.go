package provider

import (
	"reflect"
	"strings"
	"testing"

	"thinkchat/model"
)

func TestStepSplitter(t *testing.T) {
	var s StepSplitter

	if got := s.Write("First, read the question. It asks"); len(got) != 0 {
		t.Errorf("unfinished paragraph produced steps: %+v", got)
	}
	if got := s.Write(" for a sum.\n"); len(got) != 0 {
		t.Errorf("single newline produced steps: %+v", got)
	}

	steps := s.Write("\nThen add the numbers.\n\nFinally")
	want := []model.Step{
		{Text: "First, read the question.", Explanation: "First, read the question. It asks for a sum."},
		{Text: "Then add the numbers.", Explanation: "Then add the numbers."},
	}
	if !reflect.DeepEqual(steps, want) {
		t.Errorf("got %+v, want %+v", steps, want)
	}

	if got := s.Write(" check."); len(got) != 0 {
		t.Errorf("unfinished paragraph produced steps: %+v", got)
	}
	want = []model.Step{{Text: "Finally check.", Explanation: "Finally check."}}
	if got := s.Flush(); !reflect.DeepEqual(got, want) {
		t.Errorf("flush: got %+v, want %+v", got, want)
	}
	if got := s.Flush(); len(got) != 0 {
		t.Errorf("second flush: got %+v, want nothing", got)
	}
}

func TestStepSplitterKeepsDuplicates(t *testing.T) {
	var s StepSplitter
	steps := s.Write("Add.\n\nAdd.\n\n")
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0] != steps[1] {
		t.Errorf("duplicate paragraphs differ: %+v vs %+v", steps[0], steps[1])
	}
}

func TestStepLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain sentence", "Plain sentence"},
		{"## Heading here\nbody", "Heading here"},
		{"1. **Understand** the ask. More text.", "Understand the ask."},
		{"2+2 is simple. Yes.", "2+2 is simple."},
		{"- bullet point", "bullet point"},
	}
	for _, tt := range tests {
		if got := StepLabel(tt.in); got != tt.want {
			t.Errorf("StepLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := StepLabel(strings.Repeat("word ", 30))
	if n := len([]rune(long)); n > stepLabelWidth {
		t.Errorf("long label has %d runes, want at most %d", n, stepLabelWidth)
	}
	if !strings.HasSuffix(long, "…") {
		t.Errorf("long label %q should end with an ellipsis", long)
	}
}

func TestThinkTagFilter(t *testing.T) {
	var f ThinkTagFilter
	var content, reasoning strings.Builder

	for _, chunk := range []string{"<thi", "nk>Let me think", ".</th", "ink>The answer", " is 4.<", "b>"} {
		c, r := f.Write(chunk)
		content.WriteString(c)
		reasoning.WriteString(r)
	}
	c, r := f.Flush()
	content.WriteString(c)
	reasoning.WriteString(r)

	if got := reasoning.String(); got != "Let me think." {
		t.Errorf("reasoning: got %q, want %q", got, "Let me think.")
	}
	if got := content.String(); got != "The answer is 4.<b>" {
		t.Errorf("content: got %q, want %q", got, "The answer is 4.<b>")
	}
}

func TestThinkTagFilterPassesPlainText(t *testing.T) {
	tests := []struct {
		name          string
		write         string
		flush         bool
		wantContent   string
		wantReasoning string
	}{
		{name: "no tags", write: "no tags at all", wantContent: "no tags at all"},
		{name: "held partial tag", write: "ends with <", wantContent: "ends with "},
		{name: "flush releases partial tag", flush: true, wantContent: "<"},
	}

	var f ThinkTagFilter
	for _, tt := range tests {
		var c, r string
		if tt.flush {
			c, r = f.Flush()
		} else {
			c, r = f.Write(tt.write)
		}
		if c != tt.wantContent {
			t.Errorf("%s: content got %q, want %q", tt.name, c, tt.wantContent)
		}
		if r != tt.wantReasoning {
			t.Errorf("%s: reasoning got %q, want %q", tt.name, r, tt.wantReasoning)
		}
	}
}

func TestPartialSuffix(t *testing.T) {
	tests := []struct {
		s, tag string
		want   int
	}{
		{"abc", thinkOpen, 0},
		{"abc<", thinkOpen, 1},
		{"x<thi", thinkOpen, 4},
		{"</t", thinkClose, 3},
	}
	for _, tt := range tests {
		if got := partialSuffix(tt.s, tt.tag); got != tt.want {
			t.Errorf("partialSuffix(%q, %q) = %d, want %d", tt.s, tt.tag, got, tt.want)
		}
	}
}
