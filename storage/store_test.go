package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkchat/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.CreateConversation(ctx, "New Conversation 1")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	second, err := s.CreateConversation(ctx, "New Conversation 2")
	require.NoError(t, err)

	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, second.ID, convs[0].ID, "newest first")
	assert.Equal(t, first.ID, convs[1].ID)

	require.NoError(t, s.UpdateConversationTitle(ctx, first.ID, "Renamed"))
	assert.ErrorIs(t, s.UpdateConversationTitle(ctx, "missing", "x"), ErrConversationNotFound)

	convs, err = s.ListConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", convs[1].Title)

	_, err = s.CreateMessage(ctx, first.ID, model.Message{Role: model.RoleUser, Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteConversation(ctx, first.ID), ErrConversationNotFound)

	msgs, err := s.GetMessages(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "messages are deleted with their conversation")

	convs, err = s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, second.ID, convs[0].ID)
}

func TestMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv, err := s.CreateConversation(ctx, "chat")
	require.NoError(t, err)

	base := time.Now()
	user, err := s.CreateMessage(ctx, conv.ID, model.Message{
		Role:      model.RoleUser,
		Content:   "What is 2+2?",
		Timestamp: base,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, conv.ID, user.ConversationID)

	steps := []model.Step{
		{Text: "Add", Explanation: "2 plus 2"},
		{Text: "Add", Explanation: "2 plus 2"},
	}
	_, err = s.CreateMessage(ctx, conv.ID, model.Message{
		Role:      model.RoleAssistant,
		Content:   "4",
		Steps:     steps,
		Strategy:  "arithmetic",
		Rendered:  "cached",
		Timestamp: base.Add(time.Second),
	})
	require.NoError(t, err)

	msgs, err := s.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "What is 2+2?", msgs[0].Content)
	assert.Nil(t, msgs[0].Steps)

	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "4", msgs[1].Content)
	assert.Equal(t, steps, msgs[1].Steps, "duplicate steps are kept in order")
	assert.Equal(t, "arithmetic", msgs[1].Strategy)
	assert.Empty(t, msgs[1].Rendered)
}

func TestCreateMessageUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateMessage(context.Background(), "nope", model.Message{Role: model.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewStore(dir)
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, "persisted")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewStore(dir)
	require.NoError(t, err)
	defer s.Close()

	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, conv.ID, convs[0].ID)
	assert.Equal(t, "persisted", convs[0].Title)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateConversation(ctx, "Maths")
	require.NoError(t, err)
	b, err := s.CreateConversation(ctx, "Travel")
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, a.ID, model.Message{Role: model.RoleUser, Content: "Explain Prime numbers"})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, b.ID, model.Message{Role: model.RoleAssistant, Content: "The prime meridian runs through Greenwich"})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, b.ID, model.Message{Role: model.RoleUser, Content: "100% sure?"})
	require.NoError(t, err)

	matches, err := s.Search(ctx, "PRIME")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	titles := []string{matches[0].ConversationTitle, matches[1].ConversationTitle}
	assert.ElementsMatch(t, []string{"Maths", "Travel"}, titles)

	matches, err = s.Search(ctx, "%")
	require.NoError(t, err)
	require.Len(t, matches, 1, "wildcards are matched literally")
	assert.Equal(t, "100% sure?", matches[0].Preview)
	assert.Equal(t, model.RoleUser, matches[0].Role)

	matches, err = s.Search(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", Preview("a\nb\t c", 100))
	assert.Equal(t, "héll...", Preview("héllo", 4))
}
