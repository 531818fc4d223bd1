package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/common/logger"
	v1 "github.com/cartrita/mcp/pkg/mcp/v1"
)

// ErrClientNotFound is returned when sending to an unknown client id.
var ErrClientNotFound = errors.New("client not found")

// ServerConfig configures the unix-socket server.
type ServerConfig struct {
	SocketPath   string
	MaxFrameSize int
}

// Server listens on a unix socket and exchanges framed messages with
// connected bridges. Each accepted connection runs an independent receive
// loop; incoming metadata is annotated with an opaque client id.
type Server struct {
	cfg     ServerConfig
	handler Handler
	logger  *logger.Logger

	listener net.Listener
	clients  map[string]*conn
	nextID   atomic.Uint64
	mu       sync.RWMutex

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewServer creates a unix-socket server. The handler receives every valid
// message; handler failures on task requests produce a synthesized failed
// task response back to the sender.
func NewServer(cfg ServerConfig, handler Handler, log *logger.Logger) *Server {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  log.WithFields(zap.String("component", "transport_server")),
		clients: make(map[string]*conn),
	}
}

// Start creates the socket and begins accepting connections. The parent
// directory is created if missing, a stale socket file is removed, and the
// socket mode is restricted to the owning user.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.SocketPath, err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.listener = listener
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.acceptLoop(loopCtx)

	s.logger.Info("unix socket server started", zap.String("socket_path", s.cfg.SocketPath))
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", zap.Error(err))
			continue
		}

		clientID := fmt.Sprintf("client_%d", s.nextID.Add(1))
		c := newConn(netConn, clientID, s.cfg.MaxFrameSize, s.serverHandler(clientID), s.logger)

		s.mu.Lock()
		s.clients[clientID] = c
		s.mu.Unlock()
		s.logger.Info("client connected", zap.String("client_id", clientID))

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.receiveLoop(ctx)
			c.close()

			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
			s.logger.Info("client disconnected", zap.String("client_id", clientID))
		}()
	}
}

// serverHandler annotates incoming messages with the client id and, when the
// application handler fails on a task request, synthesizes a failed task
// response preserving correlation, tracing, and delivery options.
func (s *Server) serverHandler(clientID string) Handler {
	return func(ctx context.Context, msg *v1.Message, _ string) error {
		if msg.Context.Metadata == nil {
			msg.Context.Metadata = map[string]string{}
		}
		msg.Context.Metadata["client_id"] = clientID

		err := s.handler(ctx, msg, clientID)
		if err != nil && msg.MessageType == v1.MessageTaskRequest {
			if sendErr := s.SendTo(clientID, errorResponseFor(msg, err)); sendErr != nil {
				s.logger.Error("failed to send error response",
					zap.String("client_id", clientID),
					zap.Error(sendErr))
			}
		}
		return err
	}
}

// errorResponseFor builds a failed task response for a request the handler
// could not process.
func errorResponseFor(msg *v1.Message, cause error) *v1.Message {
	taskID := ""
	if raw, ok := msg.Payload["task_id"].(string); ok {
		taskID = raw
	}

	resp := msg.Reply(v1.MessageTaskResponse, map[string]interface{}{
		"task_id":       taskID,
		"status":        string(v1.TaskStatusFailed),
		"error_message": cause.Error(),
		"error_code":    v1.ErrCodeInternalError,
	})
	return resp
}

// SendTo sends a message to a specific connected client.
func (s *Server) SendTo(clientID string, msg *v1.Message) error {
	s.mu.RLock()
	c, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	return c.send(msg)
}

// Broadcast sends a message to every connected client. Individual send
// failures are logged and do not abort the remaining sends.
func (s *Server) Broadcast(msg *v1.Message) {
	s.mu.RLock()
	clients := make(map[string]*conn, len(s.clients))
	for id, c := range s.clients {
		clients[id] = c
	}
	s.mu.RUnlock()

	if len(clients) == 0 {
		s.logger.Warn("no clients connected for broadcast",
			zap.String("message_type", msg.MessageType))
		return
	}

	for id, c := range clients {
		if err := c.send(msg); err != nil {
			s.logger.Error("broadcast send failed",
				zap.String("client_id", id),
				zap.Error(err))
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Stop closes all connections, the listener, and removes the socket file.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	_ = s.listener.Close()
	for _, c := range s.clients {
		c.close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	_ = os.Remove(s.cfg.SocketPath)
	s.logger.Info("unix socket server stopped")
}
