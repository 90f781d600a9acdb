package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"thinkchat/model"
)

// flexID accepts ids sent as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string {
	return string(f)
}

// wireConversationID sends numeric ids as numbers, which the server's
// integer routes expect.
func wireConversationID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

type wireConversation struct {
	ID    flexID `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

func (w wireConversation) toModel() model.Conversation {
	return model.Conversation{
		ID:        w.ID.String(),
		Title:     w.Title,
		CreatedAt: parseTimestamp(w.Date),
	}
}

type wireMessage struct {
	ID        flexID       `json:"id"`
	Type      string       `json:"type"`
	Content   string       `json:"content"`
	Timestamp string       `json:"timestamp"`
	Steps     []model.Step `json:"steps"`
}

func (w wireMessage) toModel(conversationID string) model.Message {
	return model.Message{
		ID:             w.ID.String(),
		ConversationID: conversationID,
		Role:           roleFromWire(w.Type),
		Content:        w.Content,
		Steps:          w.Steps,
		Timestamp:      parseTimestamp(w.Timestamp),
	}
}

type newMessageRequest struct {
	Type    string       `json:"type"`
	Content string       `json:"content"`
	Steps   []model.Step `json:"steps,omitempty"`
}

func wireType(r model.Role) string {
	if r == model.RoleAssistant {
		return "ai"
	}
	return string(r)
}

func roleFromWire(t string) model.Role {
	if t == "ai" || t == "assistant" {
		return model.RoleAssistant
	}
	return model.RoleUser
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts RFC 3339 and the naive isoformat the server emits.
// Unparseable values yield the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
