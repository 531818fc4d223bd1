// Package conversation keeps per-session chat history in memory with LRU
// eviction, plus a TTL cache for repeated prompts.
package conversation

import (
	"container/list"
	"sync"
	"time"

	"github.com/cartrita/mcp/internal/provider/llm"
)

// DefaultCapacity bounds the number of live sessions.
const DefaultCapacity = 1000

// Conversation is one session's chat history.
type Conversation struct {
	SessionID    string            `json:"session_id"`
	UserID       string            `json:"user_id,omitempty"`
	Messages     []llm.ChatMessage `json:"messages"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

// Store holds conversations up to a fixed capacity. Reads and writes both
// count as activity; when full, the session idle the longest is evicted.
type Store struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently active
	sessions map[string]*list.Element
}

// NewStore builds a store. capacity <= 0 selects DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		order:    list.New(),
		sessions: make(map[string]*list.Element),
	}
}

// Append adds a message to the session, creating it on first use.
func (s *Store) Append(sessionID, userID string, msg llm.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.touchLocked(sessionID)
	if conv == nil {
		conv = &Conversation{
			SessionID: sessionID,
			UserID:    userID,
			CreatedAt: time.Now().UTC(),
		}
		s.sessions[sessionID] = s.order.PushFront(conv)
		if s.order.Len() > s.capacity {
			s.evictLocked()
		}
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastActivity = time.Now().UTC()
}

// History returns a copy of the session's messages, newest last. limit <= 0
// returns everything. A read refreshes the session's activity.
func (s *Store) History(sessionID string, limit int) ([]llm.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.touchLocked(sessionID)
	if conv == nil {
		return nil, false
	}
	msgs := conv.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]llm.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, true
}

// Get returns a snapshot of the session. A read refreshes activity.
func (s *Store) Get(sessionID string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.touchLocked(sessionID)
	if conv == nil {
		return Conversation{}, false
	}
	snapshot := *conv
	snapshot.Messages = make([]llm.ChatMessage, len(conv.Messages))
	copy(snapshot.Messages, conv.Messages)
	return snapshot, true
}

// Delete removes a session. Returns false if it was not present.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	s.order.Remove(elem)
	delete(s.sessions, sessionID)
	return true
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// SessionIDs lists live sessions, most recently active first.
func (s *Store) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, s.order.Len())
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		ids = append(ids, elem.Value.(*Conversation).SessionID)
	}
	return ids
}

// touchLocked moves the session to the front and stamps activity. Returns
// nil if the session does not exist. Callers hold s.mu.
func (s *Store) touchLocked(sessionID string) *Conversation {
	elem, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	s.order.MoveToFront(elem)
	conv := elem.Value.(*Conversation)
	conv.LastActivity = time.Now().UTC()
	return conv
}

// evictLocked drops the session idle the longest. Callers hold s.mu.
func (s *Store) evictLocked() {
	back := s.order.Back()
	if back == nil {
		return
	}
	s.order.Remove(back)
	delete(s.sessions, back.Value.(*Conversation).SessionID)
}
