package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkchat/model"
)

func readAll(t *testing.T, input string) []string {
	t.Helper()
	dec := NewDecoder(strings.NewReader(input))
	var frames []string
	for {
		payload, err := dec.Next()
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, string(payload))
	}
}

func TestDecoderFrames(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single frame",
			input: "data: {\"type\":\"end\"}\n\n",
			want:  []string{`{"type":"end"}`},
		},
		{
			name:  "no space after colon",
			input: "data:abc\n\n",
			want:  []string{"abc"},
		},
		{
			name:  "multi-line data joined",
			input: "data: one\ndata: two\n\n",
			want:  []string{"one\ntwo"},
		},
		{
			name:  "crlf line endings",
			input: "data: a\r\n\r\ndata: b\r\n\r\n",
			want:  []string{"a", "b"},
		},
		{
			name:  "comments and other fields ignored",
			input: ": keepalive\nevent: message\nid: 7\ndata: x\n\n",
			want:  []string{"x"},
		},
		{
			name:  "extra blank lines",
			input: "\n\ndata: x\n\n\n\ndata: y\n\n",
			want:  []string{"x", "y"},
		},
		{
			name:  "trailing frame without blank line",
			input: "data: x\n\ndata: y",
			want:  []string{"x", "y"},
		},
		{
			name:  "empty stream",
			input: "",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAll(t, tt.input))
		})
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    model.StreamEvent
		wantErr bool
	}{
		{
			name:    "content",
			payload: `{"type":"content","data":"Hello"}`,
			want:    model.StreamEvent{Type: model.EventContent, Text: "Hello"},
		},
		{
			name:    "steps",
			payload: `{"type":"steps","data":{"step":"Analyze","explanation":"read the question"}}`,
			want: model.StreamEvent{Type: model.EventSteps, Step: model.Step{
				Text: "Analyze", Explanation: "read the question",
			}},
		},
		{
			name:    "strategy",
			payload: `{"type":"strategy","data":"chain-of-thought"}`,
			want:    model.StreamEvent{Type: model.EventStrategy, Text: "chain-of-thought"},
		},
		{
			name:    "server error",
			payload: `{"type":"error","data":"model overloaded"}`,
			want:    model.StreamEvent{Type: model.EventError, Text: "model overloaded"},
		},
		{
			name:    "end",
			payload: `{"type":"end"}`,
			want:    model.StreamEvent{Type: model.EventEnd},
		},
		{
			name:    "not json",
			payload: `{bad`,
			want:    model.StreamEvent{Type: model.EventError, Text: ParseErrorText},
			wantErr: true,
		},
		{
			name:    "unknown type",
			payload: `{"type":"progress","data":1}`,
			want:    model.StreamEvent{Type: model.EventError, Text: ParseErrorText},
			wantErr: true,
		},
		{
			name:    "wrong data shape",
			payload: `{"type":"content","data":{"x":1}}`,
			want:    model.StreamEvent{Type: model.EventError, Text: ParseErrorText},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
