package provider

import (
	"context"
	"errors"

	"thinkchat/model"
	"thinkchat/stream"
)

// errStopped ends a provider stream once the router stops accepting events.
var errStopped = errors.New("stream stopped")

// emitter feeds one provider response into the router: reasoning through
// the step splitter, answer text through the think-tag filter.
type emitter struct {
	emit  func(model.StreamEvent) bool
	steps StepSplitter
	tags  ThinkTagFilter
}

func (e *emitter) strategy(label string) error {
	if label == "" {
		return nil
	}
	return e.send(model.StreamEvent{Type: model.EventStrategy, Text: label})
}

func (e *emitter) content(chunk string) error {
	if chunk == "" {
		return nil
	}
	text, reasoning := e.tags.Write(chunk)
	if err := e.reasoning(reasoning); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	// Answer text closes the reasoning paragraph in progress.
	if err := e.sendSteps(e.steps.Flush()); err != nil {
		return err
	}
	return e.send(model.StreamEvent{Type: model.EventContent, Text: text})
}

func (e *emitter) reasoning(chunk string) error {
	return e.sendSteps(e.steps.Write(chunk))
}

// finish flushes held-back text and any trailing reasoning paragraph.
func (e *emitter) finish() error {
	text, reasoning := e.tags.Flush()
	if err := e.reasoning(reasoning); err != nil {
		return err
	}
	if err := e.sendSteps(e.steps.Flush()); err != nil {
		return err
	}
	if text != "" {
		return e.send(model.StreamEvent{Type: model.EventContent, Text: text})
	}
	return nil
}

func (e *emitter) sendSteps(steps []model.Step) error {
	for _, step := range steps {
		if err := e.send(model.StreamEvent{Type: model.EventSteps, Step: step}); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) send(ev model.StreamEvent) error {
	if !e.emit(ev) {
		return errStopped
	}
	return nil
}

// produce runs fn on a router. The strategy label is sent first; the
// router adds the end event once fn returns.
func produce(ctx context.Context, strategy string, fn func(ctx context.Context, out *emitter) error) model.EventSource {
	return stream.Run(ctx, func(ctx context.Context, emit func(model.StreamEvent) bool) error {
		out := &emitter{emit: emit}
		if err := out.strategy(strategy); err != nil {
			return err
		}
		if err := fn(ctx, out); err != nil {
			return err
		}
		return out.finish()
	})
}
