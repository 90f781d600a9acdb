package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"thinkchat/config"
	"thinkchat/model"
)

func collect(t *testing.T, src model.EventSource) []model.StreamEvent {
	t.Helper()
	var events []model.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-src.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not close; got %d events", len(events))
		}
	}
}

func transcriptOf(msgs ...model.Message) string {
	return model.BuildTranscript(msgs)
}

func open(t *testing.T, b Backend, question string) model.EventSource {
	t.Helper()
	src, err := b.OpenResponseStream(context.Background(), transcriptOf(
		model.Message{Role: model.RoleUser, Content: question},
	), "c1")
	if err != nil {
		t.Fatalf("OpenResponseStream() error = %v", err)
	}
	return src
}

func assertEvents(t *testing.T, got, want []model.StreamEvent) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestLocalBackendStreamsStepsThenContent(t *testing.T) {
	events := collect(t, open(t, NewLocalBackend(0), "What is 2+2? Show work."))
	if len(events) < 5 {
		t.Fatalf("got %d events, want at least 5: %+v", len(events), events)
	}

	if want := (model.StreamEvent{Type: model.EventStrategy, Text: strategyMultiStep}); events[0] != want {
		t.Errorf("first event: got %+v, want %+v", events[0], want)
	}
	for i, explanation := range []string{"What is 2+2?", "Show work."} {
		ev := events[i+1]
		if ev.Type != model.EventSteps || ev.Step.Explanation != explanation {
			t.Errorf("event %d: got %+v, want step %q", i+1, ev, explanation)
		}
	}

	var content strings.Builder
	for _, ev := range events[3 : len(events)-1] {
		if ev.Type != model.EventContent {
			t.Fatalf("unexpected %s event among content: %+v", ev.Type, ev)
		}
		content.WriteString(ev.Text)
	}
	if got := content.String(); got != "You said: What is 2+2? Show work." {
		t.Errorf("content: got %q", got)
	}
	if last := events[len(events)-1]; last.Type != model.EventEnd {
		t.Errorf("last event: got %s, want end", last.Type)
	}
}

func TestLocalBackendSingleSentenceHasNoSteps(t *testing.T) {
	events := collect(t, open(t, NewLocalBackend(0), "hello"))
	if events[0].Text != strategyStandard {
		t.Errorf("strategy: got %q, want %q", events[0].Text, strategyStandard)
	}
	for _, ev := range events {
		if ev.Type == model.EventSteps {
			t.Errorf("unexpected step: %+v", ev.Step)
		}
	}
}

func TestLocalBackendCancel(t *testing.T) {
	src := open(t, NewLocalBackend(time.Hour), "One. Two.")

	if first := <-src.Events(); first.Type != model.EventStrategy {
		t.Fatalf("first event: got %s, want strategy", first.Type)
	}

	src.Cancel()
	if events := collect(t, src); len(events) != 0 {
		t.Errorf("events after cancel: %+v", events)
	}
}

func TestOllamaBackendTurnsThinkingIntoSteps(t *testing.T) {
	var gotThink bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path: got %q, want /api/chat", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotThink = req["think"] == true

		w.Header().Set("Content-Type", "application/x-ndjson")
		line := func(thinking, content string, done bool) {
			resp := map[string]any{
				"model":      "qwen3:latest",
				"created_at": "2025-01-01T00:00:00Z",
				"message":    map[string]any{"role": "assistant", "content": content, "thinking": thinking},
				"done":       done,
			}
			data, _ := json.Marshal(resp)
			fmt.Fprintf(w, "%s\n", data)
		}
		line("Read the question.\n\nAdd", "", false)
		line(" the numbers.", "", false)
		line("", "4", false)
		line("", "", true)
	}))
	defer srv.Close()

	b, err := NewOllamaBackend(srv.URL, "qwen3:latest")
	if err != nil {
		t.Fatalf("NewOllamaBackend() error = %v", err)
	}

	events := collect(t, open(t, b, "What is 2+2?"))
	if !gotThink {
		t.Error("request did not ask for thinking")
	}
	assertEvents(t, events, []model.StreamEvent{
		{Type: model.EventStrategy, Text: "qwen3:latest"},
		{Type: model.EventSteps, Step: model.Step{Text: "Read the question.", Explanation: "Read the question."}},
		{Type: model.EventSteps, Step: model.Step{Text: "Add the numbers.", Explanation: "Add the numbers."}},
		{Type: model.EventContent, Text: "4"},
		{Type: model.EventEnd},
	})
}

func TestOllamaBackendErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	b, err := NewOllamaBackend(srv.URL, "missing")
	if err != nil {
		t.Fatalf("NewOllamaBackend() error = %v", err)
	}

	events := collect(t, open(t, b, "hi"))
	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := events[len(events)-1]
	if last.Type != model.EventError || !last.Terminal {
		t.Errorf("last event: got %+v, want a terminal error", last)
	}
	if !strings.Contains(last.Text, "Ollama streaming error") {
		t.Errorf("error text: got %q", last.Text)
	}
	if last.Err == nil {
		t.Error("terminal event should carry the error")
	}
}

func TestOpenRouterBackendReadsReasoningField(t *testing.T) {
	var body map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path: got %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		chunk := func(delta string, finish string) {
			fr := "null"
			if finish != "" {
				fr = `"` + finish + `"`
			}
			fmt.Fprintf(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"deepseek/deepseek-r1","choices":[{"index":0,"delta":%s,"finish_reason":%s}]}`+"\n\n", delta, fr)
		}
		chunk(`{"role":"assistant","content":"","reasoning":"Recall the facts.\n\n"}`, "")
		chunk(`{"content":"Paris"}`, "")
		chunk(`{}`, "stop")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	b, err := NewOpenRouterBackend(srv.URL, "test-key", "deepseek/deepseek-r1")
	if err != nil {
		t.Fatalf("NewOpenRouterBackend() error = %v", err)
	}
	if got := b.GetDisplayName(); got != "deepseek-r1" {
		t.Errorf("GetDisplayName() = %q, want deepseek-r1", got)
	}

	events := collect(t, open(t, b, "Capital of France?"))
	if auth != "Bearer test-key" {
		t.Errorf("Authorization: got %q", auth)
	}
	if body["include_reasoning"] != true {
		t.Errorf("include_reasoning: got %v, want true", body["include_reasoning"])
	}
	assertEvents(t, events, []model.StreamEvent{
		{Type: model.EventStrategy, Text: "deepseek-r1"},
		{Type: model.EventSteps, Step: model.Step{Text: "Recall the facts.", Explanation: "Recall the facts."}},
		{Type: model.EventContent, Text: "Paris"},
		{Type: model.EventEnd},
	})
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"ollama with defaults", Config{Kind: config.BackendOllama}, ""},
		{"local", Config{Kind: config.BackendLocal}, ""},
		{"openai", Config{Kind: config.BackendOpenAI, APIKey: "k"}, ""},
		{"openrouter", Config{Kind: config.BackendOpenRouter, APIKey: "k"}, ""},
		{"anthropic", Config{Kind: config.BackendAnthropic, APIKey: "k", ThinkingBudget: 10}, ""},
		{"openai without key", Config{Kind: config.BackendOpenAI}, "API key is required"},
		{"server", Config{Kind: config.BackendServer}, "not a direct provider"},
		{"unknown", Config{Kind: config.BackendKind("gemini")}, "unknown backend kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("NewBackend() error = %v, want it to contain %q", err, tt.wantErr)
				}
				if b != nil {
					t.Errorf("NewBackend() returned a backend alongside the error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			if b.GetModel() == "" {
				t.Error("GetModel() is empty")
			}
		})
	}
}

func TestAnthropicBudgetFloor(t *testing.T) {
	b, err := NewAnthropicBackend("", "k", "", 10)
	if err != nil {
		t.Fatalf("NewAnthropicBackend() error = %v", err)
	}
	if b.budget != 1024 {
		t.Errorf("budget: got %d, want 1024", b.budget)
	}
	if got, want := b.GetModel(), config.BackendAnthropic.DefaultModel(); got != want {
		t.Errorf("GetModel() = %q, want %q", got, want)
	}

	b, err = NewAnthropicBackend("", "k", "", 0)
	if err != nil {
		t.Fatalf("NewAnthropicBackend() error = %v", err)
	}
	if b.budget != 0 {
		t.Errorf("budget: got %d, want 0", b.budget)
	}
}

func TestFromConfigRequiresKey(t *testing.T) {
	cfg := &config.Config{Backend: config.BackendConfig{Kind: "openai"}}
	if _, err := FromConfig(cfg); err == nil || !strings.Contains(err.Error(), "set-key openai") {
		t.Errorf("FromConfig() error = %v, want a set-key hint", err)
	}

	cfg = &config.Config{Backend: config.BackendConfig{Kind: "local"}}
	b, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if b.GetModel() != "local" {
		t.Errorf("GetModel() = %q, want local", b.GetModel())
	}
}
