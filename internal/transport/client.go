package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/common/logger"
	v1 "github.com/cartrita/mcp/pkg/mcp/v1"
)

// ClientConfig configures the unix-socket client.
type ClientConfig struct {
	SocketPath     string
	MaxFrameSize   int
	ConnectTimeout time.Duration
}

// Client connects to the orchestrator's unix socket, sends framed messages,
// and dispatches incoming messages to a handler.
type Client struct {
	cfg     ClientConfig
	handler Handler
	logger  *logger.Logger

	mu        sync.Mutex
	conn      *conn
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool
}

// NewClient creates a transport client. The handler receives every valid
// message from the server.
func NewClient(cfg ClientConfig, handler Handler, log *logger.Logger) *Client {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		logger:  log.WithFields(zap.String("component", "transport_client")),
	}
}

// Connect dials the socket and starts the receive loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	netConn, err := net.DialTimeout("unix", c.cfg.SocketPath, c.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.SocketPath, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.conn = newConn(netConn, "server", c.cfg.MaxFrameSize, c.handler, c.logger)
	c.cancel = cancel
	c.connected = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.conn.receiveLoop(loopCtx)

		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	c.logger.Info("connected to unix socket server", zap.String("socket_path", c.cfg.SocketPath))
	return nil
}

// Send writes one message, blocking only until the frame is flushed.
func (c *Client) Send(msg *v1.Message) error {
	c.mu.Lock()
	conn, connected := c.conn, c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return conn.send(msg)
}

// IsConnected reports whether the receive loop is active.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect cancels the receive loop and closes the stream. Safe to call
// multiple times.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.cancel()
	c.mu.Unlock()

	conn.close()
	c.wg.Wait()
	c.logger.Info("disconnected from unix socket server")
}
