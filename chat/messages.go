package chat

import (
	"time"

	"thinkchat/model"
)

// Level is the severity of a Notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notification is a user-facing message raised by a session.
type Notification struct {
	Level Level
	Text  string
	At    time.Time
}

// Messages returned by session commands. Turn carries the turn number the
// command was issued for so results from a cancelled turn are dropped.

type userSavedMsg struct {
	Turn  uint64
	Saved model.Message
	Err   error
}

type streamOpenedMsg struct {
	Turn   uint64
	Source model.EventSource
	Err    error
}

type streamEventMsg struct {
	Turn  uint64
	Event model.StreamEvent
}

type streamClosedMsg struct {
	Turn uint64
}

type assistantSavedMsg struct {
	Turn  uint64
	Saved model.Message
	Err   error
}

// ThinkingTickMsg fires when a message's step hold or settle delay elapses.
type ThinkingTickMsg struct {
	MessageID string
	Gen       uint64
}

// RevealTickMsg reveals the next step of an expanded step list.
type RevealTickMsg struct {
	MessageID string
	Gen       uint64
}

// HistoryLoadedMsg carries the stored messages of a conversation.
type HistoryLoadedMsg struct {
	ConversationID string
	Messages       []model.Message
	Err            error
}

// TitleUpdatedMsg reports the result of Rename.
type TitleUpdatedMsg struct {
	ConversationID string
	Title          string
	Err            error
}

// TurnFinishedMsg is emitted once a turn ends, whatever the outcome. Err is
// set when the turn ended on a terminal error.
type TurnFinishedMsg struct {
	ConversationID string
	MessageID      string
	Failed         bool
	Err            error
}
