package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkchat/model"
	"thinkchat/provider/testutil"
	"thinkchat/stream"
	"thinkchat/thinking"
)

var fastTiming = Timing{
	StepDisplayTime: time.Millisecond,
	RevealStagger:   time.Millisecond,
	TurnTimeout:     5 * time.Second,
}

// run executes cmd and every command that follows from it, feeding each
// message back into the session, until nothing is left to do.
func run(t *testing.T, s *Session, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	var seen []tea.Msg
	queue := []tea.Cmd{cmd}
	deadline := time.Now().Add(5 * time.Second)

	for len(queue) > 0 {
		require.True(t, time.Now().Before(deadline), "session did not settle")
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg := next()
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
			continue
		}
		if msg == nil {
			continue
		}
		seen = append(seen, msg)
		queue = append(queue, s.Update(msg))
	}
	return seen
}

// step executes a single command that must not batch.
func step(t *testing.T, s *Session, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	require.NotNil(t, cmd)
	return s.Update(cmd())
}

func sourceBackend(src *testutil.MockSource) *testutil.MockBackend {
	return &testutil.MockBackend{
		OpenFunc: func(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
			return src, nil
		},
	}
}

func assistant(t *testing.T, s *Session) model.Message {
	t.Helper()
	msgs := s.Messages()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	require.Equal(t, model.RoleAssistant, last.Role)
	return last
}

func TestSendTurnStreamsAndPersists(t *testing.T) {
	store := testutil.NewMockStore()
	backend := testutil.NewMockBackend(testutil.ContentEvent("Hel"), testutil.ContentEvent("lo"))
	s := NewSession("c1", store, backend, fastTiming)

	seen := run(t, s, s.SendTurn("  hi  "))

	assert.False(t, s.Processing())
	require.Len(t, s.Messages(), 2)
	assert.Equal(t, "hi", s.Messages()[0].Content)
	assert.Equal(t, "Hello", assistant(t, s).Content)

	assert.Equal(t, []string{"###USER###\nhi\n###END###"}, backend.Transcripts())

	saved := store.Saved()
	require.Len(t, saved, 2)
	assert.Equal(t, model.RoleUser, saved[0].Role)
	assert.Equal(t, model.RoleAssistant, saved[1].Role)
	assert.Equal(t, "Hello", saved[1].Content)

	assert.Contains(t, seen, tea.Msg(TurnFinishedMsg{ConversationID: "c1", MessageID: assistant(t, s).ID}))
	assert.Empty(t, s.TakeNotifications())
}

func TestSendTurnIgnoresBlankAndConcurrent(t *testing.T) {
	src := testutil.NewMockSource()
	s := NewSession("c1", testutil.NewMockStore(), sourceBackend(src), fastTiming)

	assert.Nil(t, s.SendTurn(""))
	assert.Nil(t, s.SendTurn(" \n\t"))
	assert.Empty(t, s.Messages())

	require.NotNil(t, s.SendTurn("first"))
	assert.True(t, s.Processing())
	assert.Nil(t, s.SendTurn("second"))
	assert.Len(t, s.Messages(), 1)
}

func TestTranscriptIncludesEarlierTurns(t *testing.T) {
	backend := testutil.NewMockBackend(testutil.ContentEvent("4"))
	s := NewSession("c1", testutil.NewMockStore(), backend, fastTiming)

	run(t, s, s.SendTurn("What is 2+2?"))
	run(t, s, s.SendTurn("Times three?"))

	transcripts := backend.Transcripts()
	require.Len(t, transcripts, 2)
	assert.Equal(t,
		"###USER###\nWhat is 2+2?\n###END###\n###AI###\n4\n###END###\n###USER###\nTimes three?\n###END###",
		transcripts[1])
}

func TestStepsArePacedAndKept(t *testing.T) {
	events := append([]model.StreamEvent{{Type: model.EventStrategy, Text: "Multi-step reasoning"}},
		testutil.StepEvents(testutil.TestSteps()...)...)
	events = append(events, testutil.ContentEvent("4"))
	s := NewSession("c1", testutil.NewMockStore(), testutil.NewMockBackend(events...), fastTiming)

	seen := run(t, s, s.SendTurn("What is 2+2?"))

	msg := assistant(t, s)
	assert.Equal(t, "Multi-step reasoning", msg.Strategy)
	assert.Equal(t, testutil.TestSteps(), msg.Steps)
	assert.Equal(t, "4", msg.Content)

	state := s.Thinking(msg.ID)
	assert.Equal(t, thinking.Idle, state.Phase)
	assert.True(t, state.StopRequested)
	assert.False(t, state.Visible)
	assert.Equal(t, uint64(len(testutil.TestSteps())), state.Seq, "every step is shown once")

	var ticks int
	for _, m := range seen {
		if _, ok := m.(ThinkingTickMsg); ok {
			ticks++
		}
	}
	assert.GreaterOrEqual(t, ticks, len(testutil.TestSteps()))
}

func TestDuplicateEndPersistsOnce(t *testing.T) {
	src := testutil.NewMockSource()
	store := testutil.NewMockStore()
	s := NewSession("c1", store, sourceBackend(src), fastTiming)

	src.Send(testutil.ContentEvent("a"))
	src.Send(testutil.EndEvent())
	src.Send(testutil.EndEvent())

	run(t, s, s.SendTurn("q"))

	// A late end for the finished turn is dropped as well.
	run(t, s, func() tea.Msg { return streamEventMsg{Turn: 1, Event: testutil.EndEvent()} })

	saved := store.Saved()
	require.Len(t, saved, 2)
	assert.Equal(t, "a", saved[1].Content)
	assert.True(t, src.Cancelled(), "source released after end")
}

func TestOpenFailureMarksPlaceholderFailed(t *testing.T) {
	store := testutil.NewMockStore()
	openErr := errors.New("model not configured")
	backend := &testutil.MockBackend{
		OpenFunc: func(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
			return nil, openErr
		},
	}
	s := NewSession("c1", store, backend, fastTiming)

	seen := run(t, s, s.SendTurn("hi"))

	msg := assistant(t, s)
	assert.True(t, msg.Failed)
	assert.Empty(t, msg.Content)
	assert.False(t, s.Processing())
	assert.Len(t, store.Saved(), 1, "only the user message is persisted")

	notes := s.TakeNotifications()
	require.Len(t, notes, 1)
	assert.Equal(t, LevelError, notes[0].Level)
	assert.Contains(t, notes[0].Text, "model not configured")
	assert.Contains(t, seen, tea.Msg(TurnFinishedMsg{ConversationID: "c1", MessageID: msg.ID, Failed: true, Err: openErr}))
}

func finishedMsg(t *testing.T, seen []tea.Msg) TurnFinishedMsg {
	t.Helper()
	for _, msg := range seen {
		if done, ok := msg.(TurnFinishedMsg); ok {
			return done
		}
	}
	t.Fatal("turn did not finish")
	return TurnFinishedMsg{}
}

func TestExpiredSessionOnSaveEndsTurn(t *testing.T) {
	store := testutil.NewMockStore()
	store.CreateMessageFunc = func(ctx context.Context, conversationID string, msg model.Message) (model.Message, error) {
		return model.Message{}, fmt.Errorf("create message: %w", model.ErrSessionExpired)
	}
	backend := &testutil.MockBackend{
		OpenFunc: func(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
			t.Error("stream opened after the session expired")
			return nil, errors.New("unexpected")
		},
	}
	s := NewSession("c1", store, backend, fastTiming)

	done := finishedMsg(t, run(t, s, s.SendTurn("hi")))

	assert.ErrorIs(t, done.Err, model.ErrSessionExpired)
	assert.False(t, s.Processing())
	require.Len(t, s.Messages(), 1, "no reply placeholder")
	assert.Empty(t, s.TakeNotifications(), "the login form reports it")
}

func TestTerminalStreamErrorKeepsCause(t *testing.T) {
	src := testutil.NewMockSource()
	s := NewSession("c1", testutil.NewMockStore(), sourceBackend(src), fastTiming)

	cause := &stream.StreamError{Attempts: 1, Err: model.ErrSessionExpired}
	src.Send(model.StreamEvent{Type: model.EventError, Text: model.ErrSessionExpired.Error(), Terminal: true, Err: cause})
	src.Close()

	done := finishedMsg(t, run(t, s, s.SendTurn("hi")))

	assert.True(t, done.Failed)
	assert.ErrorIs(t, done.Err, model.ErrSessionExpired)
	assert.True(t, model.NeedsSignIn(done.Err))
	assert.Empty(t, s.TakeNotifications())
}

func TestTerminalErrorAfterContentKeepsPartialReply(t *testing.T) {
	src := testutil.NewMockSource()
	store := testutil.NewMockStore()
	s := NewSession("c1", store, sourceBackend(src), fastTiming)

	src.Send(testutil.ContentEvent("partial"))
	src.Send(model.StreamEvent{Type: model.EventError, Text: "stream retries exhausted", Terminal: true})
	src.Close()

	run(t, s, s.SendTurn("hi"))

	msg := assistant(t, s)
	assert.False(t, msg.Failed)
	assert.Equal(t, "partial", msg.Content)
	assert.False(t, s.Processing())
	assert.Len(t, store.Saved(), 1)

	notes := s.TakeNotifications()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Text, "retries exhausted")
}

func TestNonTerminalErrorContinuesTurn(t *testing.T) {
	src := testutil.NewMockSource()
	store := testutil.NewMockStore()
	s := NewSession("c1", store, sourceBackend(src), fastTiming)

	src.Send(testutil.ContentEvent("one "))
	src.Send(model.StreamEvent{Type: model.EventError, Text: "tool unavailable"})
	src.Send(testutil.ContentEvent("two"))
	src.Send(testutil.EndEvent())

	run(t, s, s.SendTurn("hi"))

	assert.Equal(t, "one two", assistant(t, s).Content)
	require.Len(t, store.Saved(), 2)

	notes := s.TakeNotifications()
	require.Len(t, notes, 1)
	assert.Equal(t, LevelWarn, notes[0].Level)
	assert.Equal(t, "tool unavailable", notes[0].Text)
}

func TestUserSaveFailureStaysOptimistic(t *testing.T) {
	store := testutil.NewMockStore()
	store.CreateMessageFunc = func(ctx context.Context, conversationID string, msg model.Message) (model.Message, error) {
		if msg.Role == model.RoleUser {
			return model.Message{}, errors.New("disk full")
		}
		return msg, nil
	}
	s := NewSession("c1", store, testutil.NewMockBackend(testutil.ContentEvent("ok")), fastTiming)

	run(t, s, s.SendTurn("hi"))

	require.Len(t, s.Messages(), 2)
	assert.Equal(t, "hi", s.Messages()[0].Content)
	assert.Equal(t, "ok", assistant(t, s).Content)

	notes := s.TakeNotifications()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Text, "disk full")
}

func TestCancelStopsTurn(t *testing.T) {
	src := testutil.NewMockSource()
	store := testutil.NewMockStore()
	s := NewSession("c1", store, sourceBackend(src), fastTiming)

	src.Send(testutil.ContentEvent("par"))

	cmd := step(t, s, s.SendTurn("hi"))
	cmd = step(t, s, cmd)
	pending := step(t, s, cmd) // content applied, next read pending

	run(t, s, s.Cancel())

	assert.True(t, src.Cancelled())
	assert.False(t, s.Processing())
	assert.Equal(t, "par", assistant(t, s).Content)
	assert.Len(t, store.Saved(), 1)

	// The read still pending for the cancelled turn changes nothing.
	run(t, s, pending)
	assert.Equal(t, "par", assistant(t, s).Content)
	assert.Len(t, store.Saved(), 1)

	notes := s.TakeNotifications()
	require.Len(t, notes, 1)
	assert.Equal(t, LevelInfo, notes[0].Level)

	assert.Nil(t, s.Cancel())
}

func TestCancelRemovesEmptyPlaceholder(t *testing.T) {
	src := testutil.NewMockSource()
	s := NewSession("c1", testutil.NewMockStore(), sourceBackend(src), fastTiming)

	cmd := step(t, s, s.SendTurn("hi"))
	require.Len(t, s.Messages(), 2)

	s.Cancel()
	require.Len(t, s.Messages(), 1)

	// The open result arriving late is released, not used.
	run(t, s, cmd)
	assert.True(t, src.Cancelled())
	assert.Len(t, s.Messages(), 1)
}

func TestCancelHardStopsThinking(t *testing.T) {
	src := testutil.NewMockSource()
	timing := fastTiming
	timing.StepDisplayTime = time.Hour
	s := NewSession("c1", testutil.NewMockStore(), sourceBackend(src), timing)

	src.Send(testutil.StepEvents(testutil.TestSteps()...)[0])
	src.Send(testutil.StepEvents(testutil.TestSteps()...)[1])

	cmd := step(t, s, s.SendTurn("hi"))
	cmd = step(t, s, cmd)
	step(t, s, cmd)

	id := assistant(t, s).ID
	assert.Equal(t, thinking.Thinking, s.Thinking(id).Phase)

	s.Cancel()
	state := s.Thinking(id)
	assert.Equal(t, thinking.Idle, state.Phase)
	assert.False(t, state.Visible)
	assert.Zero(t, state.Queued)
}

func TestTurnTimeout(t *testing.T) {
	backend := &testutil.MockBackend{}
	backend.OpenFunc = func(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
		return stream.Run(ctx, func(ctx context.Context, emit func(model.StreamEvent) bool) error {
			<-ctx.Done()
			return ctx.Err()
		}), nil
	}
	timing := fastTiming
	timing.TurnTimeout = 20 * time.Millisecond
	s := NewSession("c1", testutil.NewMockStore(), backend, timing)

	run(t, s, s.SendTurn("hi"))

	assert.False(t, s.Processing())
	assert.True(t, assistant(t, s).Failed)
	notes := s.TakeNotifications()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Text, "timed out")
}

func TestLoadHistoryAndRename(t *testing.T) {
	store := testutil.NewMockStore()
	conv, err := store.CreateConversation(context.Background(), "New Conversation 1")
	require.NoError(t, err)
	for _, m := range testutil.TestMessages() {
		_, err := store.CreateMessage(context.Background(), conv.ID, m)
		require.NoError(t, err)
	}

	s := NewSession(conv.ID, store, testutil.NewMockBackend(), fastTiming)
	run(t, s, s.LoadHistory())
	require.Len(t, s.Messages(), 3)
	assert.Equal(t, testutil.TestSteps(), s.Messages()[1].Steps)

	assert.Nil(t, s.Rename("   "))
	seen := run(t, s, s.Rename("Arithmetic"))
	assert.Equal(t, []tea.Msg{TitleUpdatedMsg{ConversationID: conv.ID, Title: "Arithmetic"}}, seen)

	convs, err := store.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Arithmetic", convs[0].Title)
	assert.Empty(t, s.TakeNotifications())
}

func TestLoadHistoryFailureNotifies(t *testing.T) {
	store := testutil.NewMockStore()
	store.GetMessagesFunc = func(ctx context.Context, conversationID string) ([]model.Message, error) {
		return nil, errors.New("offline")
	}
	s := NewSession("c1", store, testutil.NewMockBackend(), fastTiming)

	run(t, s, s.LoadHistory())
	assert.Empty(t, s.Messages())
	notes := s.TakeNotifications()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Text, "offline")
}

func TestToggleStepsRevealsPersistedSteps(t *testing.T) {
	store := testutil.NewMockStore()
	s := NewSession("c1", store, testutil.NewMockBackend(), fastTiming)
	run(t, s, func() tea.Msg {
		msgs := testutil.TestMessages()
		msgs[1].ID = "a1"
		return HistoryLoadedMsg{ConversationID: "c1", Messages: msgs}
	})

	assert.Nil(t, s.ToggleSteps("missing"))

	run(t, s, s.ToggleSteps("a1"))
	d := s.Disclosure()
	assert.True(t, d.Expanded("a1"))
	assert.True(t, d.RevealComplete("a1"))
	assert.Equal(t, 3, d.Visible("a1", 3))

	s.ToggleExplanation("a1", 1)
	assert.True(t, d.ExplanationOpen("a1", 1))
}

func TestHistoryReloadKeepsDrainingSteps(t *testing.T) {
	events := append(testutil.StepEvents(testutil.TestSteps()...), testutil.ContentEvent("4"))
	s := NewSession("c1", testutil.NewMockStore(), testutil.NewMockBackend(events...), fastTiming)

	// Run the turn but hold back pacing ticks so the steps are still draining.
	var held []tea.Msg
	queue := []tea.Cmd{s.SendTurn("What is 2+2?")}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case ThinkingTickMsg:
			held = append(held, msg)
		case nil:
		default:
			queue = append(queue, s.Update(msg))
		}
	}
	require.False(t, s.Processing())
	require.NotEmpty(t, held)

	reply := assistant(t, s)
	require.Equal(t, thinking.Draining, s.Thinking(reply.ID).Phase)

	stored := reply
	stored.ID = "stored-reply"
	s.Update(HistoryLoadedMsg{ConversationID: "c1", Messages: []model.Message{
		{ID: "stored-question", Role: model.RoleUser, Content: "What is 2+2?"},
		stored,
	}})

	state := s.Thinking("stored-reply")
	assert.Equal(t, thinking.Draining, state.Phase, "reload keeps the animation")
	assert.True(t, state.Visible)

	for _, tick := range held {
		run(t, s, func() tea.Msg { return tick })
	}

	state = s.Thinking("stored-reply")
	assert.Equal(t, thinking.Idle, state.Phase)
	assert.Equal(t, uint64(len(testutil.TestSteps())), state.Seq, "every step is still shown")
}

func TestHistoryReloadDropsUnknownControllers(t *testing.T) {
	events := append(testutil.StepEvents(testutil.TestSteps()...), testutil.ContentEvent("4"))
	s := NewSession("c1", testutil.NewMockStore(), testutil.NewMockBackend(events...), fastTiming)
	run(t, s, s.SendTurn("q"))
	reply := assistant(t, s)

	s.Update(HistoryLoadedMsg{ConversationID: "c1", Messages: []model.Message{
		{ID: "other", Role: model.RoleAssistant, Content: "something else"},
	}})

	assert.Equal(t, thinking.State{}, s.Thinking(reply.ID))
	assert.Equal(t, thinking.State{}, s.Thinking("other"))
}
