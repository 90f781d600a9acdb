package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"thinkchat/model"
)

const (
	strategyStandard  = "Standard response"
	strategyMultiStep = "Multi-step reasoning"
)

// LocalBackend answers without any network access. It reasons about the
// last user message one sentence per step and echoes it back, which is
// enough to exercise the thinking display offline.
type LocalBackend struct {
	// Delay paces the emitted events. Zero emits as fast as the reader
	// accepts them.
	Delay time.Duration
}

var _ Backend = (*LocalBackend)(nil)

func NewLocalBackend(delay time.Duration) *LocalBackend {
	return &LocalBackend{Delay: delay}
}

func (p *LocalBackend) OpenResponseStream(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
	prompt := lastUserMessage(ParseTranscript(transcript))
	sentences := splitSentences(prompt)

	strategy := strategyStandard
	if len(sentences) > 1 {
		strategy = strategyMultiStep
	}

	return produce(ctx, "", func(ctx context.Context, out *emitter) error {
		if err := out.strategy(strategy); err != nil {
			return err
		}

		if len(sentences) > 1 {
			for i, sentence := range sentences {
				if err := p.pause(ctx); err != nil {
					return err
				}
				step := model.Step{
					Text:        fmt.Sprintf("Consider part %d", i+1),
					Explanation: sentence,
				}
				if err := out.sendSteps([]model.Step{step}); err != nil {
					return err
				}
			}
		}

		answer := "You said: " + prompt
		if prompt == "" {
			answer = "Nothing to answer."
		}
		for _, word := range strings.SplitAfter(answer, " ") {
			if err := p.pause(ctx); err != nil {
				return err
			}
			if err := out.content(word); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

func (p *LocalBackend) pause(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *LocalBackend) GetModel() string {
	return "local"
}

func (p *LocalBackend) GetDisplayName() string {
	return "Local echo"
}

func (p *LocalBackend) Ping(ctx context.Context) error {
	return nil
}

func lastUserMessage(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

// splitSentences breaks text after ". ", "? " and "! " and at newlines.
func splitSentences(text string) []string {
	var sentences []string
	for _, line := range strings.Split(text, "\n") {
		for line != "" {
			i := sentenceEnd(line)
			if i < 0 {
				i = len(line)
			}
			if s := strings.TrimSpace(line[:i]); s != "" {
				sentences = append(sentences, s)
			}
			line = line[i:]
		}
	}
	return sentences
}
