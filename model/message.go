package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Step is one unit of reasoning reported by the backend: a short label plus
// a longer explanation. Steps are never deduplicated.
type Step struct {
	Text        string `json:"step"`
	Explanation string `json:"explanation"`
}

// Message represents a chat message
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string // Append-only while streaming
	Steps          []Step
	Strategy       string
	Rendered       string // Cached rendered markdown (never persisted)
	Failed         bool   // Assistant placeholder whose stream never produced an event
	Timestamp      time.Time
}

// Conversation is an ordered list of messages with a title.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Messages  []Message
}

// transcriptTag returns the role marker used by the backend's transcript
// format. Assistant turns are tagged AI.
func transcriptTag(r Role) string {
	if r == RoleAssistant {
		return "AI"
	}
	return strings.ToUpper(string(r))
}

// BuildTranscript concatenates messages into the backend prompt format:
//
//	###USER###
//	hello
//	###END###
//
// with one block per message joined by newlines.
func BuildTranscript(messages []Message) string {
	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		blocks = append(blocks, "###"+transcriptTag(msg.Role)+"###\n"+msg.Content+"\n###END###")
	}
	return strings.Join(blocks, "\n")
}
