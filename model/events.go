package model

// EventType identifies the kind of a decoded stream frame.
type EventType string

const (
	EventContent  EventType = "content"
	EventSteps    EventType = "steps"
	EventStrategy EventType = "strategy"
	EventError    EventType = "error"
	EventEnd      EventType = "end"
)

// StreamEvent is one typed event from a response stream.
//
// Text carries the payload for content, strategy and error events. Step is
// set for steps events. Terminal marks an error after which the source has
// closed without an end event (retries exhausted, turn timeout); Err then
// holds the failure for callers that need to tell causes apart.
type StreamEvent struct {
	Type     EventType
	Text     string
	Step     Step
	Terminal bool
	Err      error
}

// EventSource is an open response stream. Events are delivered in arrival
// order and the channel is closed once the source completes or is cancelled.
type EventSource interface {
	Events() <-chan StreamEvent
	Cancel()
}
