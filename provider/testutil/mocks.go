package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"thinkchat/model"
	"thinkchat/stream"
)

// MockBackend implements model.Backend for testing
type MockBackend struct {
	// Configurable response
	OpenFunc func(ctx context.Context, transcript, conversationID string) (model.EventSource, error)

	mu          sync.Mutex
	transcripts []string
}

// NewMockBackend creates a mock backend that replays events on every call.
// The router appends the end event.
func NewMockBackend(events ...model.StreamEvent) *MockBackend {
	mock := &MockBackend{}
	mock.OpenFunc = func(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
		return stream.Run(ctx, func(ctx context.Context, emit func(model.StreamEvent) bool) error {
			for _, ev := range events {
				if !emit(ev) {
					return nil
				}
			}
			return nil
		}), nil
	}
	return mock
}

func (m *MockBackend) OpenResponseStream(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
	m.mu.Lock()
	m.transcripts = append(m.transcripts, transcript)
	m.mu.Unlock()
	return m.OpenFunc(ctx, transcript, conversationID)
}

// Transcripts returns the transcripts submitted so far.
func (m *MockBackend) Transcripts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.transcripts...)
}

// MockSource is an EventSource driven by the test.
type MockSource struct {
	ch chan model.StreamEvent

	mu        sync.Mutex
	closed    bool
	cancelled bool
}

func NewMockSource() *MockSource {
	return &MockSource{ch: make(chan model.StreamEvent, 64)}
}

func (s *MockSource) Events() <-chan model.StreamEvent {
	return s.ch
}

// Send queues ev. It is dropped once the source is closed or cancelled.
func (s *MockSource) Send(ev model.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- ev
}

// Close ends the stream without an end event.
func (s *MockSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *MockSource) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.Close()
}

func (s *MockSource) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// MockStore implements model.Store in memory. Any Func field that is set
// replaces the default behaviour.
type MockStore struct {
	CreateMessageFunc      func(ctx context.Context, conversationID string, msg model.Message) (model.Message, error)
	GetMessagesFunc        func(ctx context.Context, conversationID string) ([]model.Message, error)
	UpdateTitleFunc        func(ctx context.Context, conversationID, title string) error
	ListConversationsFunc  func(ctx context.Context) ([]model.Conversation, error)
	CreateConversationFunc func(ctx context.Context, title string) (model.Conversation, error)
	DeleteConversationFunc func(ctx context.Context, conversationID string) error

	mu            sync.Mutex
	nextID        int
	conversations []model.Conversation
	messages      map[string][]model.Message
	saved         []model.Message
}

func NewMockStore() *MockStore {
	return &MockStore{messages: make(map[string][]model.Message)}
}

// Saved returns every message passed to CreateMessage, in call order.
func (m *MockStore) Saved() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.saved...)
}

func (m *MockStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *MockStore) CreateMessage(ctx context.Context, conversationID string, msg model.Message) (model.Message, error) {
	m.mu.Lock()
	m.saved = append(m.saved, msg)
	m.mu.Unlock()

	if m.CreateMessageFunc != nil {
		return m.CreateMessageFunc(ctx, conversationID, msg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = m.id("msg")
	msg.ConversationID = conversationID
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	return msg, nil
}

func (m *MockStore) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	if m.GetMessagesFunc != nil {
		return m.GetMessagesFunc(ctx, conversationID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.messages[conversationID]...), nil
}

func (m *MockStore) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	if m.UpdateTitleFunc != nil {
		return m.UpdateTitleFunc(ctx, conversationID, title)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.conversations {
		if m.conversations[i].ID == conversationID {
			m.conversations[i].Title = title
			return nil
		}
	}
	return fmt.Errorf("conversation %s not found", conversationID)
}

func (m *MockStore) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	if m.ListConversationsFunc != nil {
		return m.ListConversationsFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Conversation(nil), m.conversations...), nil
}

func (m *MockStore) CreateConversation(ctx context.Context, title string) (model.Conversation, error) {
	if m.CreateConversationFunc != nil {
		return m.CreateConversationFunc(ctx, title)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := model.Conversation{ID: m.id("conv"), Title: title, CreatedAt: time.Now()}
	m.conversations = append(m.conversations, conv)
	return conv, nil
}

func (m *MockStore) DeleteConversation(ctx context.Context, conversationID string) error {
	if m.DeleteConversationFunc != nil {
		return m.DeleteConversationFunc(ctx, conversationID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.conversations {
		if m.conversations[i].ID == conversationID {
			m.conversations = append(m.conversations[:i], m.conversations[i+1:]...)
			delete(m.messages, conversationID)
			return nil
		}
	}
	return fmt.Errorf("conversation %s not found", conversationID)
}
