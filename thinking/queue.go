// Package thinking paces the display of reasoning steps.
//
// A Controller owns a Queue of steps that arrived from the backend and shows
// them one at a time, each for at least the configured display interval.
// The controller never starts timers itself: every state change returns an
// optional *Tick describing the timer the caller must arm, and the caller
// reports back through OnTick. This keeps the state machine free of
// goroutines and lets Bubble Tea (tea.Tick) or a test clock drive it.
package thinking

import "thinkchat/model"

// Queue is a FIFO of steps awaiting display. It has no capacity bound and
// never reorders or deduplicates.
type Queue struct {
	steps []model.Step
}

func (q *Queue) Enqueue(step model.Step) {
	q.steps = append(q.steps, step)
}

// DequeueNext removes and returns the head of the queue.
func (q *Queue) DequeueNext() (model.Step, bool) {
	if len(q.steps) == 0 {
		return model.Step{}, false
	}
	step := q.steps[0]
	q.steps[0] = model.Step{}
	q.steps = q.steps[1:]
	return step, true
}

func (q *Queue) Len() int {
	return len(q.steps)
}

func (q *Queue) Reset() {
	q.steps = nil
}
