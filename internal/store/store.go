// Package store persists chat sessions, messages, attachments, and
// feedback. Three implementations share one interface: in-memory, SQLite,
// and PostgreSQL.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session, message, or attachment does not
// exist.
var ErrNotFound = errors.New("store: not found")

// Session is one chat session.
type Session struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Title     string                 `json:"title,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Message is one chat turn inside a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentID   string    `json:"agent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is a binary blob tied to a session and optionally a message.
type Attachment struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	MessageID   string    `json:"message_id,omitempty"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Feedback is a user rating on a message.
type Feedback struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	MessageID string    `json:"message_id,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence contract. DeleteSession cascades to the
// session's messages, attachments, and feedback.
type Store interface {
	PutSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error)

	PutAttachment(ctx context.Context, att *Attachment) error
	ListAttachments(ctx context.Context, sessionID string) ([]*Attachment, error)

	PutFeedback(ctx context.Context, fb *Feedback) error
	ListFeedback(ctx context.Context, sessionID string) ([]*Feedback, error)

	Close() error
}
