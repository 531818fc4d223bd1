package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(userID string) *Session {
	return &Session{
		ID:     uuid.New().String(),
		UserID: userID,
		Title:  "test session",
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	session := newSession("alice")
	session.Metadata = map[string]interface{}{"source": "api"}
	require.NoError(t, s.PutSession(ctx, session))

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "test session", got.Title)
	assert.Equal(t, "api", got.Metadata["source"])
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutSessionPreservesCreatedAt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	session := newSession("alice")
	require.NoError(t, s.PutSession(ctx, session))
	first, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	session.Title = "renamed"
	require.NoError(t, s.PutSession(ctx, session))

	second, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", second.Title)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestListSessionsFiltersAndOrders(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a1 := newSession("alice")
	require.NoError(t, s.PutSession(ctx, a1))
	time.Sleep(time.Millisecond)
	b1 := newSession("bob")
	require.NoError(t, s.PutSession(ctx, b1))
	time.Sleep(time.Millisecond)
	a2 := newSession("alice")
	require.NoError(t, s.PutSession(ctx, a2))

	sessions, err := s.ListSessions(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, a2.ID, sessions[0].ID)
	assert.Equal(t, a1.ID, sessions[1].ID)

	all, err := s.ListSessions(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMessagesRequireSession(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.AppendMessage(ctx, &Message{ID: "m1", SessionID: "missing", Role: "user"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ListMessages(ctx, "missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageOrderingAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	session := newSession("alice")
	require.NoError(t, s.PutSession(ctx, session))

	for i, content := range []string{"first", "second", "third"} {
		require.NoError(t, s.AppendMessage(ctx, &Message{
			ID:        uuid.New().String(),
			SessionID: session.ID,
			Role:      "user",
			Content:   content,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}))
	}

	msgs, err := s.ListMessages(ctx, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "third", msgs[2].Content)

	tail, err := s.ListMessages(ctx, session.ID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "second", tail[0].Content)
	assert.Equal(t, "third", tail[1].Content)
}

func TestAttachmentsAndFeedback(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	session := newSession("alice")
	require.NoError(t, s.PutSession(ctx, session))

	att := &Attachment{
		ID:          uuid.New().String(),
		SessionID:   session.ID,
		Name:        "shot.png",
		ContentType: "image/png",
		Data:        []byte{0x89, 0x50, 0x4e, 0x47},
	}
	require.NoError(t, s.PutAttachment(ctx, att))

	// The store keeps its own copy of the payload.
	att.Data[0] = 0x00
	atts, err := s.ListAttachments(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, byte(0x89), atts[0].Data[0])

	require.NoError(t, s.PutFeedback(ctx, &Feedback{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Rating:    5,
		Comment:   "helpful",
	}))
	fbs, err := s.ListFeedback(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, fbs, 1)
	assert.Equal(t, 5, fbs[0].Rating)
}

func TestDeleteSessionCascades(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	session := newSession("alice")
	require.NoError(t, s.PutSession(ctx, session))
	require.NoError(t, s.AppendMessage(ctx, &Message{
		ID: "m1", SessionID: session.ID, Role: "user", Content: "hi",
	}))

	require.NoError(t, s.DeleteSession(ctx, session.ID))
	assert.ErrorIs(t, s.DeleteSession(ctx, session.ID), ErrNotFound)

	_, err := s.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ListMessages(ctx, session.ID, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBindDollarRewritesPlaceholders(t *testing.T) {
	assert.Equal(t, "SELECT $1, $2, $3", bindDollar("SELECT ?, ?, ?"))
	assert.Equal(t, "no placeholders", bindDollar("no placeholders"))
}
