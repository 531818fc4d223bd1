package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/common/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// clientCommand is what a connected client may send: subject filters.
type clientCommand struct {
	Action  string `json:"action"`
	Subject string `json:"subject"`
}

// Client is one WebSocket connection. With no filters set it receives
// every event; adding filters narrows delivery to matching subjects.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	mu      sync.RWMutex
	filters map[string]bool
	logger  *logger.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:      id,
		conn:    conn,
		hub:     hub,
		send:    make(chan []byte, 256),
		filters: make(map[string]bool),
		logger:  log.WithFields(zap.String("client_id", id)),
	}
}

// wants reports whether the client's filters admit the subject.
func (c *Client) wants(subject string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.filters) == 0 {
		return true
	}
	for pattern := range c.filters {
		if matchSubject(pattern, subject) {
			return true
		}
	}
	return false
}

// ReadPump consumes filter commands from the connection until it closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			c.logger.Debug("ignoring unparseable client message", zap.Error(err))
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd clientCommand) {
	if cmd.Subject == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd.Action {
	case "subscribe":
		c.filters[cmd.Subject] = true
	case "unsubscribe":
		delete(c.filters, cmd.Subject)
	}
}

// WritePump pushes queued events to the connection and keeps it alive with
// pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
