package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartrita/mcp/internal/agent"
	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/conversation"
	"github.com/cartrita/mcp/internal/events/bus"
	"github.com/cartrita/mcp/internal/memory"
	"github.com/cartrita/mcp/internal/provider/vector"
	"github.com/cartrita/mcp/internal/store"
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

// echoWorker answers every task with a canned reply.
type echoWorker struct{ id string }

func (w *echoWorker) ID() string { return w.id }

func (w *echoWorker) Execute(_ context.Context, task *agent.Task) (*agent.Response, error) {
	return &agent.Response{
		Success:         true,
		Content:         "echo: " + task.Description,
		AgentID:         w.id,
		TaskID:          task.ID,
		ExecutionTimeMs: 1,
	}, nil
}

func (w *echoWorker) Status() map[string]interface{} {
	return map[string]interface{}{"agent_id": w.id, "status": "ready"}
}

func (w *echoWorker) Shutdown(context.Context) error { return nil }

type testGateway struct {
	engine    *gin.Engine
	server    *Server
	manager   *agent.Manager
	persisted *store.MemoryStore
	hub       *Hub
	cancel    context.CancelFunc
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := newTestLogger(t)

	manager := agent.NewManager(agent.ManagerConfig{}, nil, nil, nil, log)
	require.NoError(t, manager.RegisterWorker(&echoWorker{id: agent.WorkerSupervisor}, agent.Config{}))
	require.NoError(t, manager.RegisterWorker(&echoWorker{id: agent.WorkerCode}, agent.Config{}))

	hub := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	persisted := store.NewMemoryStore()
	server := NewServer(manager, conversation.NewStore(0), hub, ServerOptions{Persisted: persisted}, log)

	engine := gin.New()
	server.SetupRoutes(engine)
	return &testGateway{
		engine:    engine,
		server:    server,
		manager:   manager,
		persisted: persisted,
		hub:       hub,
		cancel:    cancel,
	}
}

func (g *testGateway) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	g.engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body, "agents")
	assert.Contains(t, body, "manager_stats")
	assert.EqualValues(t, 0, body["ws_clients"])
}

func TestAgentEndpoints(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodGet, "/api/v1/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	agents := body["agents"].(map[string]interface{})
	assert.Len(t, agents, 2)

	rec = g.do(t, http.MethodGet, "/api/v1/agents/code", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = g.do(t, http.MethodGet, "/api/v1/agents/ghost", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChatRoutesAndPersists(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodPost, "/api/v1/chat", map[string]string{
		"message":    "please debug this code",
		"session_id": "s1",
		"user_id":    "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, agent.WorkerCode, body["agent"])
	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, false, body["cached"])

	msgs, err := g.persisted.ListMessages(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, agent.WorkerCode, msgs[1].AgentID)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodPost, "/api/v1/chat", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatelessChatIsCached(t *testing.T) {
	g := newTestGateway(t)

	first := g.do(t, http.MethodPost, "/api/v1/chat", map[string]string{"message": "hello there"})
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, false, decodeBody(t, first)["cached"])

	second := g.do(t, http.MethodPost, "/api/v1/chat", map[string]string{"message": "hello there"})
	require.Equal(t, http.StatusOK, second.Code)
	body := decodeBody(t, second)
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, "echo: hello there", body["content"])
}

func TestSessionEndpoints(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodPost, "/api/v1/chat", map[string]string{
		"message":    "hi",
		"session_id": "s9",
		"user_id":    "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = g.do(t, http.MethodGet, "/api/v1/sessions?user_id=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decodeBody(t, rec)["sessions"].([]interface{})
	assert.Len(t, sessions, 1)

	rec = g.do(t, http.MethodGet, "/api/v1/sessions/s9/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decodeBody(t, rec)["messages"].([]interface{})
	assert.Len(t, msgs, 2)

	rec = g.do(t, http.MethodDelete, "/api/v1/sessions/s9", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = g.do(t, http.MethodGet, "/api/v1/sessions/s9/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMemorySearchEndpoint(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodGet, "/api/v1/memory/search?q=python", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	index, err := vector.NewChromemIndex("", "tasks")
	require.NoError(t, err)
	embed := func(_ context.Context, input []string) ([][]float32, error) {
		out := make([][]float32, len(input))
		for i, text := range input {
			v := make([]float32, 2)
			if strings.Contains(strings.ToLower(text), "python") {
				v[0] = 1
			} else {
				v[1] = 1
			}
			out[i] = v
		}
		return out, nil
	}
	g.server.memory = memory.New(index, embed, newTestLogger(t))
	require.NoError(t, g.server.memory.Record(context.Background(), "t1", "fix the python build", "code", true))

	rec = g.do(t, http.MethodGet, "/api/v1/memory/search?q=python+tests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decodeBody(t, rec)["results"].([]interface{})
	require.Len(t, results, 1)
	hit := results[0].(map[string]interface{})
	assert.Equal(t, "t1", hit["task_id"])
	assert.Equal(t, "code", hit["agent"])

	rec = g.do(t, http.MethodGet, "/api/v1/memory/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsSocketReceivesBroadcast(t *testing.T) {
	g := newTestGateway(t)

	srv := httptest.NewServer(g.engine)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Wait for the hub to register the client before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for g.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, g.hub.ClientCount())

	g.hub.Publish(bus.NewEvent(bus.SubjectTaskCompleted, "test", map[string]interface{}{
		"task_id": "t1",
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event bus.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, bus.SubjectTaskCompleted, event.Type)
	assert.Equal(t, "t1", event.Data["task_id"])
}

func TestMatchSubject(t *testing.T) {
	cases := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"task.completed", "task.completed", true},
		{"task.completed", "task.failed", false},
		{"task.*", "task.failed", true},
		{"task.*", "task.sub.deep", false},
		{"task.>", "task.sub.deep", true},
		{"task.>", "task", false},
		{">", "anything.at.all", true},
		{"*.completed", "task.completed", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchSubject(tc.pattern, tc.subject),
			"pattern %q subject %q", tc.pattern, tc.subject)
	}
}
