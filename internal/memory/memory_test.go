package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/provider/vector"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
	})
	require.NoError(t, err)
	return log
}

// keywordEmbed maps each text onto fixed topic axes so similarity is
// predictable without a model.
func keywordEmbed(_ context.Context, input []string) ([][]float32, error) {
	axes := []string{"python", "screenshot", "report", "deploy"}
	out := make([][]float32, len(input))
	for i, text := range input {
		v := make([]float32, len(axes))
		lower := strings.ToLower(text)
		for j, axis := range axes {
			if strings.Contains(lower, axis) {
				v[j] = 1
			}
		}
		out[i] = v
	}
	return out, nil
}

func newTestMemory(t *testing.T) *TaskMemory {
	t.Helper()
	index, err := vector.NewChromemIndex("", "tasks")
	require.NoError(t, err)
	return New(index, keywordEmbed, newTestLogger(t))
}

func TestRecordAndRecall(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, "t1", "write a python parser", "code", true))
	require.NoError(t, m.Record(ctx, "t2", "take a screenshot of the dashboard", "computer-use", true))
	require.NoError(t, m.Record(ctx, "t3", "draft the quarterly report", "writer", false))
	assert.Equal(t, 3, m.Size())

	recalls, err := m.Similar(ctx, "debug my python script", 2)
	require.NoError(t, err)
	require.NotEmpty(t, recalls)
	assert.Equal(t, "t1", recalls[0].TaskID)
	assert.Equal(t, "code", recalls[0].Agent)
	assert.Greater(t, recalls[0].Score, float32(0.9))
}

func TestSimilarOrdersByScore(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Record(ctx, "t1", "python deploy pipeline", "code", true))
	require.NoError(t, m.Record(ctx, "t2", "deploy the staging cluster", "code", true))

	recalls, err := m.Similar(ctx, "deploy", 2)
	require.NoError(t, err)
	require.Len(t, recalls, 2)
	assert.Equal(t, "t2", recalls[0].TaskID)
	assert.GreaterOrEqual(t, recalls[0].Score, recalls[1].Score)
}

func TestSimilarOnEmptyMemory(t *testing.T) {
	m := newTestMemory(t)

	recalls, err := m.Similar(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, recalls)
}

func TestNormalizeUnitLength(t *testing.T) {
	v := vector.Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := vector.Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}
