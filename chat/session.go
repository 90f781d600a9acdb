// Package chat runs a conversation turn by turn: it persists what the user
// sends, streams the assistant reply from a backend and paces the reasoning
// steps that arrive along the way.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"thinkchat/config"
	"thinkchat/model"
	"thinkchat/thinking"
)

const storeTimeout = 30 * time.Second

// Timing holds the durations a session paces itself with.
type Timing struct {
	StepDisplayTime time.Duration
	SettleDelay     time.Duration
	RevealStagger   time.Duration
	TurnTimeout     time.Duration
}

func TimingFromConfig(cfg *config.Config) Timing {
	return Timing{
		StepDisplayTime: cfg.Thinking.StepDisplayTime,
		SettleDelay:     cfg.Thinking.SettleDelay,
		RevealStagger:   cfg.Thinking.RevealStagger,
		TurnTimeout:     cfg.Stream.TurnTimeout,
	}
}

type turn struct {
	seq         uint64
	assistantID string
	source      model.EventSource
	cancel      context.CancelFunc
	received    int
	persisted   bool
}

// Session owns the messages of one conversation. All mutation happens in
// SendTurn, Cancel and Update, which must be called from the Bubble Tea
// update loop; I/O runs in the returned commands.
type Session struct {
	conversationID string
	store          model.MessageStore
	backend        model.Backend
	timing         Timing

	messages      []model.Message
	turn          *turn
	turns         uint64
	controllers   map[string]*thinking.Controller
	renamed       map[string]string // old message id -> reloaded id, for pending ticks
	disclosure    *Disclosure
	notifications []Notification
}

func NewSession(conversationID string, store model.MessageStore, backend model.Backend, timing Timing) *Session {
	return &Session{
		conversationID: conversationID,
		store:          store,
		backend:        backend,
		timing:         timing,
		controllers:    make(map[string]*thinking.Controller),
		disclosure:     NewDisclosure(timing.RevealStagger),
	}
}

func (s *Session) ConversationID() string {
	return s.conversationID
}

// Messages returns the conversation so far. The slice must not be modified.
func (s *Session) Messages() []model.Message {
	return s.messages
}

func (s *Session) Message(id string) (model.Message, bool) {
	if i := s.index(id); i >= 0 {
		return s.messages[i], true
	}
	return model.Message{}, false
}

// Processing reports whether a turn is in flight.
func (s *Session) Processing() bool {
	return s.turn != nil
}

// Thinking returns the pacing state for an assistant message.
func (s *Session) Thinking(id string) thinking.State {
	if c, ok := s.controllers[id]; ok {
		return c.State()
	}
	return thinking.State{}
}

func (s *Session) Disclosure() *Disclosure {
	return s.disclosure
}

// TakeNotifications returns and clears pending notifications.
func (s *Session) TakeNotifications() []Notification {
	n := s.notifications
	s.notifications = nil
	return n
}

// SetTiming applies new durations. Controllers already running keep theirs.
func (s *Session) SetTiming(t Timing) {
	s.timing = t
	s.disclosure.SetStagger(t.RevealStagger)
}

// SetBackend swaps the backend used for later turns.
func (s *Session) SetBackend(b model.Backend) {
	s.backend = b
}

// SetRendered stores the rendered form of a message.
func (s *Session) SetRendered(id, rendered string) {
	s.update(id, func(m *model.Message) { m.Rendered = rendered })
}

// ToggleSteps expands or collapses the steps of a message.
func (s *Session) ToggleSteps(id string) tea.Cmd {
	msg, ok := s.Message(id)
	if !ok || len(msg.Steps) == 0 {
		return nil
	}
	return s.disclosure.ToggleSteps(id, len(msg.Steps))
}

func (s *Session) ToggleExplanation(id string, index int) {
	s.disclosure.ToggleExplanation(id, index)
}

// SendTurn starts a turn with text. It returns nil when text is blank or a
// turn is already in flight.
func (s *Session) SendTurn(text string) tea.Cmd {
	text = strings.TrimSpace(text)
	if text == "" || s.turn != nil {
		return nil
	}

	s.turns++
	t := &turn{seq: s.turns}
	s.turn = t

	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: s.conversationID,
		Role:           model.RoleUser,
		Content:        text,
		Rendered:       text,
		Timestamp:      time.Now(),
	}
	s.messages = append(s.messages, msg)

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] turn %d started in %s", t.seq, s.conversationID)
	}

	store, convID := s.store, s.conversationID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		saved, err := store.CreateMessage(ctx, convID, msg)
		return userSavedMsg{Turn: t.seq, Saved: saved, Err: err}
	}
}

// Cancel abandons the turn in flight. Steps not yet shown are dropped and
// nothing is persisted for the reply.
func (s *Session) Cancel() tea.Cmd {
	t := s.turn
	if t == nil {
		return nil
	}
	s.turn = nil
	t.release()

	if c, ok := s.controllers[t.assistantID]; ok {
		c.Cancel()
	}
	if i := s.index(t.assistantID); i >= 0 {
		if m := s.messages[i]; m.Content == "" && len(m.Steps) == 0 {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] turn %d cancelled", t.seq)
	}
	s.notify(LevelInfo, "Response cancelled")
	return s.finished(t.assistantID, false)
}

// Update applies a message produced by one of the session's commands.
// Messages it does not own are ignored.
func (s *Session) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case userSavedMsg:
		return s.onUserSaved(msg)
	case streamOpenedMsg:
		return s.onStreamOpened(msg)
	case streamEventMsg:
		return s.onStreamEvent(msg)
	case streamClosedMsg:
		if s.current(msg.Turn) {
			// Closed without an end event; keep what arrived.
			return s.complete()
		}
	case assistantSavedMsg:
		if msg.Err != nil {
			s.notify(LevelWarn, fmt.Sprintf("Failed to save response: %v", msg.Err))
		}
	case ThinkingTickMsg:
		id := msg.MessageID
		if to, ok := s.renamed[id]; ok {
			id = to
		}
		if c, ok := s.controllers[id]; ok {
			return tickCmd(id, c.OnTick(msg.Gen))
		}
	case RevealTickMsg:
		return s.disclosure.OnReveal(msg)
	case HistoryLoadedMsg:
		s.onHistoryLoaded(msg)
	case TitleUpdatedMsg:
		if msg.ConversationID == s.conversationID && msg.Err != nil {
			s.notify(LevelError, fmt.Sprintf("Failed to rename conversation: %v", msg.Err))
		}
	}
	return nil
}

func (s *Session) onUserSaved(msg userSavedMsg) tea.Cmd {
	if !s.current(msg.Turn) {
		return nil
	}
	if model.NeedsSignIn(msg.Err) {
		// The stream would be rejected for the same reason.
		return s.fail(msg.Err.Error(), msg.Err)
	}
	if msg.Err != nil {
		// Keep the message locally and carry on.
		s.notify(LevelWarn, fmt.Sprintf("Failed to save message: %v", msg.Err))
	}

	transcript := model.BuildTranscript(s.history())

	placeholder := model.Message{
		ID:             uuid.NewString(),
		ConversationID: s.conversationID,
		Role:           model.RoleAssistant,
		Timestamp:      time.Now(),
	}
	s.messages = append(s.messages, placeholder)

	t := s.turn
	t.assistantID = placeholder.ID

	var ctx context.Context
	if s.timing.TurnTimeout > 0 {
		ctx, t.cancel = context.WithTimeout(context.Background(), s.timing.TurnTimeout)
	} else {
		ctx, t.cancel = context.WithCancel(context.Background())
	}

	backend, convID := s.backend, s.conversationID
	return func() tea.Msg {
		src, err := backend.OpenResponseStream(ctx, transcript, convID)
		return streamOpenedMsg{Turn: t.seq, Source: src, Err: err}
	}
}

func (s *Session) onStreamOpened(msg streamOpenedMsg) tea.Cmd {
	if !s.current(msg.Turn) {
		if msg.Source != nil {
			msg.Source.Cancel()
		}
		return nil
	}
	if msg.Err != nil {
		return s.fail(msg.Err.Error(), msg.Err)
	}
	s.turn.source = msg.Source
	return waitForEvent(msg.Turn, msg.Source)
}

func (s *Session) onStreamEvent(msg streamEventMsg) tea.Cmd {
	if !s.current(msg.Turn) {
		return nil
	}
	t := s.turn
	ev := msg.Event
	id := t.assistantID

	var cmd tea.Cmd
	switch ev.Type {
	case model.EventContent:
		s.update(id, func(m *model.Message) {
			m.Content += ev.Text
			m.Rendered = ""
		})
	case model.EventSteps:
		s.update(id, func(m *model.Message) { m.Steps = append(m.Steps, ev.Step) })
		cmd = s.enqueueStep(id, ev.Step)
	case model.EventStrategy:
		s.update(id, func(m *model.Message) { m.Strategy = ev.Text })
	case model.EventError:
		if ev.Terminal {
			err := ev.Err
			if err == nil {
				err = errors.New(ev.Text)
			}
			return s.fail(ev.Text, err)
		}
		s.notify(LevelWarn, ev.Text)
	case model.EventEnd:
		return s.complete()
	}

	t.received++
	return tea.Batch(cmd, waitForEvent(t.seq, t.source))
}

func (s *Session) enqueueStep(id string, step model.Step) tea.Cmd {
	c, ok := s.controllers[id]
	if !ok {
		c = thinking.NewController(s.timing.StepDisplayTime, s.timing.SettleDelay)
		s.controllers[id] = c
		c.Enqueue(step)
		return tickCmd(id, c.Start())
	}
	return tickCmd(id, c.Enqueue(step))
}

// complete ends the turn normally: queued steps drain and the reply is
// persisted once.
func (s *Session) complete() tea.Cmd {
	t := s.turn
	s.turn = nil
	t.release()

	var cmds []tea.Cmd
	if c, ok := s.controllers[t.assistantID]; ok {
		cmds = append(cmds, tickCmd(t.assistantID, c.Stop()))
	}

	if !t.persisted {
		t.persisted = true
		if msg, ok := s.Message(t.assistantID); ok {
			cmds = append(cmds, s.saveAssistant(t.seq, msg))
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] turn %d complete", t.seq)
	}
	cmds = append(cmds, s.finished(t.assistantID, false))
	return tea.Batch(cmds...)
}

// fail ends the turn after a terminal error. A reply that never received
// anything is marked failed; partial replies stay as they are. Neither is
// persisted. err is handed on in TurnFinishedMsg; sign-in failures raise no
// notification since the caller sends the user back to the login form.
func (s *Session) fail(reason string, err error) tea.Cmd {
	t := s.turn
	s.turn = nil
	t.release()

	failed := t.received == 0
	if failed {
		s.update(t.assistantID, func(m *model.Message) { m.Failed = true })
	}

	var cmd tea.Cmd
	if c, ok := s.controllers[t.assistantID]; ok {
		cmd = tickCmd(t.assistantID, c.Stop())
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] turn %d failed after %d event(s): %s", t.seq, t.received, reason)
	}
	if !model.NeedsSignIn(err) {
		s.notify(LevelError, fmt.Sprintf("Response failed: %s", reason))
	}
	return tea.Batch(cmd, s.finishedWithError(t.assistantID, failed, err))
}

func (s *Session) saveAssistant(seq uint64, msg model.Message) tea.Cmd {
	store, convID := s.store, s.conversationID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		saved, err := store.CreateMessage(ctx, convID, msg)
		return assistantSavedMsg{Turn: seq, Saved: saved, Err: err}
	}
}

func (s *Session) finished(id string, failed bool) tea.Cmd {
	return s.finishedWithError(id, failed, nil)
}

func (s *Session) finishedWithError(id string, failed bool, err error) tea.Cmd {
	convID := s.conversationID
	return func() tea.Msg {
		return TurnFinishedMsg{ConversationID: convID, MessageID: id, Failed: failed, Err: err}
	}
}

// LoadHistory fetches the stored messages of the conversation.
func (s *Session) LoadHistory() tea.Cmd {
	store, convID := s.store, s.conversationID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		msgs, err := store.GetMessages(ctx, convID)
		return HistoryLoadedMsg{ConversationID: convID, Messages: msgs, Err: err}
	}
}

func (s *Session) onHistoryLoaded(msg HistoryLoadedMsg) {
	if msg.ConversationID != s.conversationID {
		return
	}
	if msg.Err != nil {
		s.notify(LevelError, fmt.Sprintf("Failed to load messages: %v", msg.Err))
		return
	}
	if s.turn != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] history for %s ignored: turn in flight", s.conversationID)
		}
		return
	}
	s.controllers = s.carryControllers(msg.Messages)
	s.messages = msg.Messages
	s.disclosure.Reset()
}

// carryControllers keeps the pacing of replies that are still part of the
// reloaded history. Stores assign their own ids, so a reply saved under a
// new id is matched by its content and steps.
func (s *Session) carryControllers(loaded []model.Message) map[string]*thinking.Controller {
	kept := make(map[string]*thinking.Controller)
	renamed := make(map[string]string)
	for id, c := range s.controllers {
		local, ok := s.Message(id)
		if !ok {
			continue
		}
		for _, m := range loaded {
			if _, taken := kept[m.ID]; taken {
				continue
			}
			if m.ID == id || sameReply(local, m) {
				kept[m.ID] = c
				if m.ID != id {
					renamed[id] = m.ID
				}
				break
			}
		}
	}
	for from, to := range s.renamed {
		if next, ok := renamed[to]; ok {
			renamed[from] = next
		} else if _, ok := kept[to]; ok {
			renamed[from] = to
		}
	}
	s.renamed = renamed
	return kept
}

func sameReply(a, b model.Message) bool {
	return a.Role == model.RoleAssistant && b.Role == model.RoleAssistant &&
		a.Content == b.Content && len(a.Steps) == len(b.Steps)
}

// Rename sets the conversation title.
func (s *Session) Rename(title string) tea.Cmd {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	store, convID := s.store, s.conversationID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err := store.UpdateConversationTitle(ctx, convID, title)
		return TitleUpdatedMsg{ConversationID: convID, Title: title, Err: err}
	}
}

func (s *Session) current(seq uint64) bool {
	return s.turn != nil && s.turn.seq == seq
}

// history is the conversation sent to the backend. Failed replies are
// left out.
func (s *Session) history() []model.Message {
	msgs := make([]model.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if !m.Failed {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func (s *Session) index(id string) int {
	if id == "" {
		return -1
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) update(id string, fn func(*model.Message)) {
	if i := s.index(id); i >= 0 {
		fn(&s.messages[i])
	}
}

func (s *Session) notify(level Level, text string) {
	s.notifications = append(s.notifications, Notification{Level: level, Text: text, At: time.Now()})
}

func (t *turn) release() {
	if t.source != nil {
		t.source.Cancel()
	}
	if t.cancel != nil {
		t.cancel()
	}
}

func waitForEvent(seq uint64, src model.EventSource) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-src.Events()
		if !ok {
			return streamClosedMsg{Turn: seq}
		}
		return streamEventMsg{Turn: seq, Event: ev}
	}
}

func tickCmd(id string, t *thinking.Tick) tea.Cmd {
	if t == nil {
		return nil
	}
	gen := t.Gen
	return tea.Tick(t.After, func(time.Time) tea.Msg {
		return ThinkingTickMsg{MessageID: id, Gen: gen}
	})
}
