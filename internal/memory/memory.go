// Package memory keeps an episodic record of delegated tasks in a vector
// index so past work can be recalled by semantic similarity rather than
// exact text match.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/provider/vector"
)

// EmbedFunc turns texts into embedding vectors, one per input.
type EmbedFunc func(ctx context.Context, input []string) ([][]float32, error)

// Episode is one remembered task.
type Episode struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Description string    `json:"description"`
	Agent       string    `json:"agent"`
	Success     bool      `json:"success"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Recall is an episode with its similarity to the query.
type Recall struct {
	Episode
	Score float32 `json:"score"`
}

// TaskMemory pairs a vector index with the episode payloads the index
// cannot hold itself.
type TaskMemory struct {
	index  vector.Index
	embed  EmbedFunc
	logger *logger.Logger

	mu       sync.RWMutex
	episodes map[string]Episode
}

// New builds a task memory over an index and an embedding function.
func New(index vector.Index, embed EmbedFunc, log *logger.Logger) *TaskMemory {
	return &TaskMemory{
		index:    index,
		embed:    embed,
		logger:   log.WithFields(zap.String("component", "task_memory")),
		episodes: make(map[string]Episode),
	}
}

// Record embeds the task description and stores the episode.
func (m *TaskMemory) Record(ctx context.Context, taskID, description, agentID string, success bool) error {
	vectors, err := m.embed(ctx, []string{description})
	if err != nil {
		return err
	}

	episode := Episode{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		Description: description,
		Agent:       agentID,
		Success:     success,
		RecordedAt:  time.Now().UTC(),
	}
	if err := m.index.Add(ctx, []string{episode.ID}, vectors, []map[string]string{{
		"task_id": taskID,
		"agent":   agentID,
	}}); err != nil {
		return err
	}

	m.mu.Lock()
	m.episodes[episode.ID] = episode
	m.mu.Unlock()
	return nil
}

// Similar returns up to k past episodes resembling the query, best first.
func (m *TaskMemory) Similar(ctx context.Context, query string, k int) ([]Recall, error) {
	vectors, err := m.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	matches, err := m.index.Search(ctx, vectors[0], k, 0)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Recall, 0, len(matches))
	for _, match := range matches {
		episode, ok := m.episodes[match.DocID]
		if !ok {
			continue
		}
		out = append(out, Recall{Episode: episode, Score: match.Score})
	}
	return out, nil
}

// Size reports the number of remembered episodes.
func (m *TaskMemory) Size() int {
	return m.index.Size()
}
