package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLStore implements Store on database/sql. Queries are written with `?`
// placeholders and rebound per driver.
type SQLStore struct {
	db   *sql.DB
	bind func(query string) string
}

var _ Store = (*SQLStore)(nil)

// bindQuestion leaves `?` placeholders as-is (SQLite).
func bindQuestion(query string) string { return query }

// bindDollar rewrites `?` placeholders to `$1..$n` (PostgreSQL).
func bindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.bind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.bind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.bind(query), args...)
}

// PutSession implements Store as an upsert keyed on the session id.
func (s *SQLStore) PutSession(ctx context.Context, session *Session) error {
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}
	now := time.Now().UTC()
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = s.exec(ctx, `
		INSERT INTO sessions (id, user_id, title, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, session.ID, session.UserID, session.Title, string(metadata), createdAt, now)
	return err
}

// GetSession implements Store.
func (s *SQLStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.queryRow(ctx, `
		SELECT id, user_id, title, metadata, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	session := &Session{}
	var metadata string
	if err := row.Scan(&session.ID, &session.UserID, &session.Title, &metadata,
		&session.CreatedAt, &session.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode session metadata: %w", err)
		}
	}
	return session, nil
}

// ListSessions implements Store, most recently updated first.
func (s *SQLStore) ListSessions(ctx context.Context, userID string, limit int) ([]*Session, error) {
	query := `
		SELECT id, user_id, title, metadata, created_at, updated_at
		FROM sessions
	`
	args := []interface{}{}
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY updated_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		session := &Session{}
		var metadata string
		if err := rows.Scan(&session.ID, &session.UserID, &session.Title, &metadata,
			&session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, err
		}
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &session.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode session metadata: %w", err)
			}
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// DeleteSession implements Store. Messages, attachments, and feedback go
// with the session via ON DELETE CASCADE.
func (s *SQLStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage implements Store.
func (s *SQLStore) AppendMessage(ctx context.Context, msg *Message) error {
	if err := s.sessionExists(ctx, msg.SessionID); err != nil {
		return err
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.exec(ctx, `
		INSERT INTO messages (id, session_id, role, content, agent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID, msg.Role, msg.Content, msg.AgentID, createdAt); err != nil {
		return err
	}
	_, err := s.exec(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC(), msg.SessionID)
	return err
}

// ListMessages implements Store, oldest first. A positive limit keeps only
// the newest entries.
func (s *SQLStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, session_id, role, content, agent_id, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&msg.AgentID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// PutAttachment implements Store.
func (s *SQLStore) PutAttachment(ctx context.Context, att *Attachment) error {
	if err := s.sessionExists(ctx, att.SessionID); err != nil {
		return err
	}
	createdAt := att.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO attachments (id, session_id, message_id, name, content_type, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, att.ID, att.SessionID, att.MessageID, att.Name, att.ContentType, att.Data, createdAt)
	return err
}

// ListAttachments implements Store.
func (s *SQLStore) ListAttachments(ctx context.Context, sessionID string) ([]*Attachment, error) {
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, `
		SELECT id, session_id, message_id, name, content_type, data, created_at
		FROM attachments WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Attachment
	for rows.Next() {
		att := &Attachment{}
		if err := rows.Scan(&att.ID, &att.SessionID, &att.MessageID, &att.Name,
			&att.ContentType, &att.Data, &att.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, rows.Err()
}

// PutFeedback implements Store.
func (s *SQLStore) PutFeedback(ctx context.Context, fb *Feedback) error {
	if err := s.sessionExists(ctx, fb.SessionID); err != nil {
		return err
	}
	createdAt := fb.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO feedback (id, session_id, message_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, fb.ID, fb.SessionID, fb.MessageID, fb.Rating, fb.Comment, createdAt)
	return err
}

// ListFeedback implements Store.
func (s *SQLStore) ListFeedback(ctx context.Context, sessionID string) ([]*Feedback, error) {
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, `
		SELECT id, session_id, message_id, rating, comment, created_at
		FROM feedback WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		fb := &Feedback{}
		if err := rows.Scan(&fb.ID, &fb.SessionID, &fb.MessageID, &fb.Rating,
			&fb.Comment, &fb.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) sessionExists(ctx context.Context, id string) error {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}
