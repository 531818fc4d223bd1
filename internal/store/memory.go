package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the reference implementation. It is safe for concurrent
// use and keeps everything in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	messages    map[string][]*Message    // session id -> ordered messages
	attachments map[string][]*Attachment // session id -> attachments
	feedback    map[string][]*Feedback   // session id -> feedback
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*Session),
		messages:    make(map[string][]*Message),
		attachments: make(map[string][]*Attachment),
		feedback:    make(map[string][]*Feedback),
	}
}

// PutSession implements Store. An existing session is overwritten with its
// CreatedAt preserved.
func (s *MemoryStore) PutSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *session
	now := time.Now().UTC()
	if existing, ok := s.sessions[session.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.sessions[session.ID] = &stored
	return nil
}

// GetSession implements Store.
func (s *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *session
	return &snapshot, nil
}

// ListSessions implements Store. Sessions are returned most recently
// updated first. An empty userID matches every session.
func (s *MemoryStore) ListSessions(_ context.Context, userID string, limit int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if userID != "" && session.UserID != userID {
			continue
		}
		snapshot := *session
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteSession implements Store.
func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	delete(s.attachments, id)
	delete(s.feedback, id)
	return nil
}

// AppendMessage implements Store. The session must exist.
func (s *MemoryStore) AppendMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[msg.SessionID]; !ok {
		return ErrNotFound
	}
	stored := *msg
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], &stored)
	s.sessions[msg.SessionID].UpdatedAt = time.Now().UTC()
	return nil
}

// ListMessages implements Store. Messages come back oldest first; a
// positive limit keeps only the newest entries.
func (s *MemoryStore) ListMessages(_ context.Context, sessionID string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*Message, len(msgs))
	for i, msg := range msgs {
		snapshot := *msg
		out[i] = &snapshot
	}
	return out, nil
}

// PutAttachment implements Store. The session must exist.
func (s *MemoryStore) PutAttachment(_ context.Context, att *Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[att.SessionID]; !ok {
		return ErrNotFound
	}
	stored := *att
	stored.Data = append([]byte(nil), att.Data...)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.attachments[att.SessionID] = append(s.attachments[att.SessionID], &stored)
	return nil
}

// ListAttachments implements Store.
func (s *MemoryStore) ListAttachments(_ context.Context, sessionID string) ([]*Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	atts := s.attachments[sessionID]
	out := make([]*Attachment, len(atts))
	for i, att := range atts {
		snapshot := *att
		snapshot.Data = append([]byte(nil), att.Data...)
		out[i] = &snapshot
	}
	return out, nil
}

// PutFeedback implements Store. The session must exist.
func (s *MemoryStore) PutFeedback(_ context.Context, fb *Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[fb.SessionID]; !ok {
		return ErrNotFound
	}
	stored := *fb
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.feedback[fb.SessionID] = append(s.feedback[fb.SessionID], &stored)
	return nil
}

// ListFeedback implements Store.
func (s *MemoryStore) ListFeedback(_ context.Context, sessionID string) ([]*Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	fbs := s.feedback[sessionID]
	out := make([]*Feedback, len(fbs))
	for i, fb := range fbs {
		snapshot := *fb
		out[i] = &snapshot
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
