// Package gateway exposes the orchestrator over HTTP: a gin API for status
// and chat, and a WebSocket fan-out of internal bus events.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/events/bus"
)

// Hub manages WebSocket client connections and fans bus events out to
// them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *bus.Event

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates an empty hub. Run must be called for it to deliver
// anything.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *bus.Event, 256),
		logger:     log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run starts the hub's main processing loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// BindBus subscribes the hub to every bus subject. The returned
// subscription should be released when the hub stops.
func (h *Hub) BindBus(events bus.EventBus) (bus.Subscription, error) {
	return events.Subscribe(">", func(_ context.Context, event *bus.Event) error {
		h.Publish(event)
		return nil
	})
}

// Publish queues an event for fan-out. Drops the event if the hub is
// backed up.
func (h *Hub) Publish(event *bus.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("hub broadcast buffer full, dropping event",
			zap.String("type", event.Type))
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
}

func (h *Hub) broadcastEvent(event *bus.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.wants(event.Type) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client buffer full, will be cleaned up by write pump
		}
	}
}

// matchSubject reports whether a NATS-style pattern matches a subject.
// `*` matches one token, `>` the rest of the subject.
func matchSubject(pattern, subject string) bool {
	if pattern == ">" {
		return subject != ""
	}
	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, p := range pTokens {
		if p == ">" {
			return i < len(sTokens)
		}
		if i >= len(sTokens) {
			return false
		}
		if p != "*" && p != sTokens[i] {
			return false
		}
	}
	return len(pTokens) == len(sTokens)
}
