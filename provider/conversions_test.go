package provider

import (
	"reflect"
	"testing"

	"thinkchat/model"
	"thinkchat/provider/testutil"
)

func TestParseTranscript(t *testing.T) {
	tests := []struct {
		name     string
		input    []model.Message
		expected []model.Message
	}{
		{
			name:     "empty",
			input:    nil,
			expected: nil,
		},
		{
			name:     "single message",
			input:    []model.Message{{Role: model.RoleUser, Content: "Hello"}},
			expected: []model.Message{{Role: model.RoleUser, Content: "Hello"}},
		},
		{
			name: "multi-line content",
			input: []model.Message{
				{Role: model.RoleUser, Content: "line one\nline two"},
				{Role: model.RoleAssistant, Content: "reply\n\nwith a gap"},
			},
			expected: []model.Message{
				{Role: model.RoleUser, Content: "line one\nline two"},
				{Role: model.RoleAssistant, Content: "reply\n\nwith a gap"},
			},
		},
		{
			name:  "empty content",
			input: []model.Message{{Role: model.RoleAssistant, Content: ""}},
			expected: []model.Message{
				{Role: model.RoleAssistant, Content: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTranscript(model.BuildTranscript(tt.input))
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestParseTranscriptIgnoresStrayText(t *testing.T) {
	got := ParseTranscript("preamble\n###USER###\nhi\n###END###\ntrailing\n###AI###\nunterminated")
	want := []model.Message{{Role: model.RoleUser, Content: "hi"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestConvertToOllamaMessages(t *testing.T) {
	msgs := testutil.TestMessages()
	result := ConvertToOllamaMessages(msgs)

	if len(result) != len(msgs)+1 {
		t.Fatalf("length mismatch: got %d, want %d", len(result), len(msgs)+1)
	}
	if result[0].Role != "system" || result[0].Content != systemPrompt {
		t.Errorf("first message should be the system prompt, got %q: %q", result[0].Role, result[0].Content)
	}
	for i, msg := range msgs {
		if result[i+1].Role != string(msg.Role) {
			t.Errorf("message %d role: got %q, want %q", i, result[i+1].Role, msg.Role)
		}
		if result[i+1].Content != msg.Content {
			t.Errorf("message %d content: got %q, want %q", i, result[i+1].Content, msg.Content)
		}
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	result := ConvertToOpenAIMessages(testutil.TestMessages())
	if len(result) != 4 {
		t.Fatalf("length mismatch: got %d, want 4", len(result))
	}
	if result[0].OfSystem == nil {
		t.Error("message 0 should be a system message")
	}
	if result[1].OfUser == nil {
		t.Error("message 1 should be a user message")
	}
	if result[2].OfAssistant == nil {
		t.Error("message 2 should be an assistant message")
	}
	if result[3].OfUser == nil {
		t.Error("message 3 should be a user message")
	}
}

func TestConvertToAnthropicMessages(t *testing.T) {
	msgs, system := convertToAnthropicMessages(testutil.TestMessages())
	if len(msgs) != 3 {
		t.Errorf("messages: got %d, want 3", len(msgs))
	}
	if len(system) != 1 {
		t.Fatalf("system blocks: got %d, want 1", len(system))
	}
	if system[0].Text != systemPrompt {
		t.Errorf("system prompt: got %q, want %q", system[0].Text, systemPrompt)
	}
}
