package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/agent"
	apperrors "github.com/cartrita/mcp/internal/common/errors"
	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/conversation"
	"github.com/cartrita/mcp/internal/memory"
	"github.com/cartrita/mcp/internal/provider/llm"
	"github.com/cartrita/mcp/internal/store"
)

// RemoteAgentsProvider reports agents registered through worker bridges.
type RemoteAgentsProvider interface {
	RemoteAgents() []map[string]interface{}
}

// Server is the HTTP surface: REST endpoints plus the /ws/events socket.
type Server struct {
	manager   *agent.Manager
	persisted store.Store
	conv      *conversation.Store
	cache     *conversation.ResponseCache
	remote    RemoteAgentsProvider
	memory    *memory.TaskMemory
	hub       *Hub
	logger    *logger.Logger
	startedAt time.Time

	upgrader websocket.Upgrader
}

// ServerOptions carries the optional collaborators.
type ServerOptions struct {
	Persisted store.Store
	Remote    RemoteAgentsProvider
	Cache     *conversation.ResponseCache
	Memory    *memory.TaskMemory
}

// NewServer wires the gateway. manager, conv, and hub are required.
func NewServer(manager *agent.Manager, conv *conversation.Store, hub *Hub, opts ServerOptions, log *logger.Logger) *Server {
	cache := opts.Cache
	if cache == nil {
		cache = conversation.NewResponseCache(0)
	}
	return &Server{
		manager:   manager,
		persisted: opts.Persisted,
		conv:      conv,
		cache:     cache,
		remote:    opts.Remote,
		memory:    opts.Memory,
		hub:       hub,
		logger:    log.WithFields(zap.String("component", "gateway")),
		startedAt: time.Now().UTC(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// SetupRoutes registers every endpoint on the engine.
func (s *Server) SetupRoutes(router *gin.Engine) {
	router.GET("/health", s.Health)
	router.GET("/ws/events", s.EventsSocket)

	api := router.Group("/api/v1")
	{
		api.GET("/status", s.Status)
		api.GET("/agents", s.ListAgents)
		api.GET("/agents/:agentId", s.GetAgent)
		api.POST("/chat", s.Chat)

		api.GET("/memory/search", s.SearchMemory)

		api.GET("/sessions", s.ListSessions)
		api.GET("/sessions/:sessionId/messages", s.ListMessages)
		api.DELETE("/sessions/:sessionId", s.DeleteSession)
	}
}

// Health answers liveness probes.
// GET /health
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(s.startedAt).Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Status returns the aggregate manager status plus gateway counters.
// GET /api/v1/status
func (s *Server) Status(c *gin.Context) {
	status, err := s.manager.Status("")
	if err != nil {
		s.renderError(c, err)
		return
	}
	status["ws_clients"] = s.hub.ClientCount()
	c.JSON(http.StatusOK, status)
}

// ListAgents returns per-worker statuses and any bridge-registered agents.
// GET /api/v1/agents
func (s *Server) ListAgents(c *gin.Context) {
	local := make(map[string]interface{})
	for _, id := range s.manager.WorkerIDs() {
		if status, err := s.manager.Status(id); err == nil {
			local[id] = status
		}
	}
	resp := gin.H{"agents": local}
	if s.remote != nil {
		resp["remote_agents"] = s.remote.RemoteAgents()
	}
	c.JSON(http.StatusOK, resp)
}

// GetAgent returns one worker's status.
// GET /api/v1/agents/:agentId
func (s *Server) GetAgent(c *gin.Context) {
	status, err := s.manager.Status(c.Param("agentId"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id"`
	PreferredAgent string `json:"preferred_agent"`
}

// Chat routes a message through the agent manager, keeping the session's
// history and memoizing stateless answers.
// POST /api/v1/chat
func (s *Server) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := apperrors.InvalidParameters("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	// Messages outside any session are memoizable: same prompt, same
	// answer until the TTL lapses.
	stateless := req.SessionID == ""
	cacheKey := conversation.CacheKey("chat", req.Message)
	if stateless {
		if content, ok := s.cache.Get(cacheKey); ok {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"content": content,
				"cached":  true,
			})
			return
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	history, _ := s.conv.History(sessionID, 50)
	reqCtx := agent.RequestContext{
		UserID:              req.UserID,
		SessionID:           sessionID,
		ConversationHistory: history,
	}

	response, err := s.manager.ExecuteTask(c.Request.Context(), req.Message, reqCtx, 0, req.PreferredAgent)
	if err != nil {
		s.renderError(c, err)
		return
	}

	s.conv.Append(sessionID, req.UserID, llm.ChatMessage{Role: llm.RoleUser, Content: req.Message})
	s.conv.Append(sessionID, req.UserID, llm.ChatMessage{Role: llm.RoleAssistant, Content: response.Content})
	s.persistTurn(c, sessionID, req, response)
	s.rememberTask(req.Message, response)

	if stateless && response.Success {
		s.cache.Put(cacheKey, response.Content)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           response.Success,
		"content":           response.Content,
		"agent":             response.AgentID,
		"task_id":           response.TaskID,
		"session_id":        sessionID,
		"execution_time_ms": response.ExecutionTimeMs,
		"tools_used":        response.ToolsUsed,
		"cached":            false,
	})
}

// persistTurn writes the exchange to the persistence store when one is
// configured.
func (s *Server) persistTurn(c *gin.Context, sessionID string, req ChatRequest, response *agent.Response) {
	if s.persisted == nil {
		return
	}
	ctx := c.Request.Context()

	if _, err := s.persisted.GetSession(ctx, sessionID); err != nil {
		if putErr := s.persisted.PutSession(ctx, &store.Session{
			ID:     sessionID,
			UserID: req.UserID,
		}); putErr != nil {
			s.logger.Warn("failed to persist session", zap.Error(putErr))
			return
		}
	}
	for _, msg := range []*store.Message{
		{ID: uuid.New().String(), SessionID: sessionID, Role: "user", Content: req.Message},
		{ID: uuid.New().String(), SessionID: sessionID, Role: "assistant", Content: response.Content, AgentID: response.AgentID},
	} {
		if err := s.persisted.AppendMessage(ctx, msg); err != nil {
			s.logger.Warn("failed to persist message", zap.Error(err))
			return
		}
	}
}

// rememberTask records the exchange in the episodic memory off the request
// path; embedding latency must not delay the chat response.
func (s *Server) rememberTask(message string, response *agent.Response) {
	if s.memory == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.memory.Record(ctx, response.TaskID, message, response.AgentID, response.Success); err != nil {
			s.logger.Warn("failed to record task memory", zap.Error(err))
		}
	}()
}

// SearchMemory recalls past tasks similar to the query.
// GET /api/v1/memory/search?q=...&k=5
func (s *Server) SearchMemory(c *gin.Context) {
	if s.memory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task memory not configured"})
		return
	}
	query := c.Query("q")
	if query == "" {
		appErr := apperrors.InvalidParameters("query parameter q is required")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	k := 5
	if raw := c.Query("k"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			k = parsed
		}
	}

	recalls, err := s.memory.Similar(c.Request.Context(), query, k)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": recalls, "total": s.memory.Size()})
}

// ListSessions lists persisted sessions, optionally filtered by user.
// GET /api/v1/sessions
func (s *Server) ListSessions(c *gin.Context) {
	if s.persisted == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not configured"})
		return
	}
	sessions, err := s.persisted.ListSessions(c.Request.Context(), c.Query("user_id"), 100)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ListMessages lists a session's persisted messages.
// GET /api/v1/sessions/:sessionId/messages
func (s *Server) ListMessages(c *gin.Context) {
	if s.persisted == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not configured"})
		return
	}
	msgs, err := s.persisted.ListMessages(c.Request.Context(), c.Param("sessionId"), 0)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// DeleteSession removes a session everywhere: persistence and the live
// conversation store.
// DELETE /api/v1/sessions/:sessionId
func (s *Server) DeleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	s.conv.Delete(sessionID)

	if s.persisted != nil {
		if err := s.persisted.DeleteSession(c.Request.Context(), sessionID); err != nil && err != store.ErrNotFound {
			s.renderError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": sessionID})
}

// EventsSocket upgrades the connection and attaches it to the hub.
// GET /ws/events
func (s *Server) EventsSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), conn, s.hub, s.logger)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func (s *Server) renderError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if e, ok := err.(*apperrors.AppError); ok {
		appErr = e
	} else {
		appErr = apperrors.Internal("internal error", err)
	}
	c.JSON(appErr.HTTPStatus, appErr)
}
