package testutil

import (
	"time"

	"thinkchat/model"
)

// TestMessages returns a sample conversation for testing
func TestMessages() []model.Message {
	return []model.Message{
		{
			Role:      model.RoleUser,
			Content:   "What is 2+2?",
			Timestamp: time.Now(),
		},
		{
			Role:      model.RoleAssistant,
			Content:   "4",
			Steps:     TestSteps(),
			Strategy:  "Multi-step reasoning",
			Timestamp: time.Now(),
		},
		{
			Role:      model.RoleUser,
			Content:   "And times three?",
			Timestamp: time.Now(),
		},
	}
}

// TestSteps returns reasoning steps, including a duplicate
func TestSteps() []model.Step {
	return []model.Step{
		{Text: "Read the question", Explanation: "The user asks for a sum."},
		{Text: "Add", Explanation: "2 plus 2 is 4."},
		{Text: "Add", Explanation: "2 plus 2 is 4."},
	}
}

// StepEvents wraps steps as steps events
func StepEvents(steps ...model.Step) []model.StreamEvent {
	events := make([]model.StreamEvent, len(steps))
	for i, s := range steps {
		events[i] = model.StreamEvent{Type: model.EventSteps, Step: s}
	}
	return events
}

// ContentEvent returns a content event
func ContentEvent(text string) model.StreamEvent {
	return model.StreamEvent{Type: model.EventContent, Text: text}
}

// EndEvent returns an end event
func EndEvent() model.StreamEvent {
	return model.StreamEvent{Type: model.EventEnd}
}
