// Package orchestrator tracks worker bridges connected over the unix
// socket: their handshakes, registered agents, heartbeats, and in-flight
// remote tasks.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/cartrita/mcp/internal/common/errors"
	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/events/bus"
	v1 "github.com/cartrita/mcp/pkg/mcp/v1"
)

// Sender delivers a message to a connected transport client.
type Sender interface {
	SendTo(clientID string, msg *v1.Message) error
}

// BridgeInfo is the orchestrator's view of one connected bridge.
type BridgeInfo struct {
	ClientID      string    `json:"client_id"`
	ServiceType   string    `json:"service_type"`
	Version       string    `json:"version"`
	Port          int       `json:"port,omitempty"`
	Capabilities  []string  `json:"capabilities"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// RemoteAgent is an agent living behind a bridge.
type RemoteAgent struct {
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Language        string    `json:"language"`
	ServiceEndpoint string    `json:"service_endpoint"`
	Status          string    `json:"status"`
	Capabilities    []string  `json:"capabilities"`
	BridgeClientID  string    `json:"bridge_client_id"`
	RegisteredAt    time.Time `json:"registered_at"`
}

// RegistryConfig tunes the registry.
type RegistryConfig struct {
	// Name is the orchestrator's wire address, used as sender on outgoing
	// messages.
	Name string
	// DefaultTaskTimeout bounds ExecuteRemoteTask when the caller's context
	// carries no deadline.
	DefaultTaskTimeout time.Duration
}

func (c *RegistryConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "orchestrator"
	}
	if c.DefaultTaskTimeout <= 0 {
		c.DefaultTaskTimeout = 30 * time.Second
	}
}

// Registry is the orchestrator-side bookkeeping for bridges and remote
// agents. Its HandleMessage is plugged into the transport server.
type Registry struct {
	cfg    RegistryConfig
	sender Sender
	events bus.EventBus
	logger *logger.Logger

	mu      sync.RWMutex
	bridges map[string]*BridgeInfo  // keyed by client id
	agents  map[string]*RemoteAgent // keyed by agent name
	pending map[string]chan *v1.TaskResponse
}

// NewRegistry builds a registry. events may be nil to skip bus publishing.
func NewRegistry(cfg RegistryConfig, sender Sender, events bus.EventBus, log *logger.Logger) *Registry {
	cfg.applyDefaults()
	return &Registry{
		cfg:     cfg,
		sender:  sender,
		events:  events,
		logger:  log.WithFields(zap.String("component", "orchestrator_registry")),
		bridges: make(map[string]*BridgeInfo),
		agents:  make(map[string]*RemoteAgent),
		pending: make(map[string]chan *v1.TaskResponse),
	}
}

// SetSender installs the transport after construction. The registry is the
// transport's message handler, so the two are built in sequence; SetSender
// must be called before the transport starts accepting connections.
func (r *Registry) SetSender(sender Sender) {
	r.sender = sender
}

// HandleMessage is the transport handler: it consumes bridge-originated
// messages and updates the registry. Unknown types are logged and ignored.
func (r *Registry) HandleMessage(ctx context.Context, msg *v1.Message, clientID string) error {
	switch msg.MessageType {
	case v1.ControlHandshake:
		r.handleHandshake(ctx, msg, clientID)
	case v1.ControlAgentRegistration:
		r.handleAgentRegistration(ctx, msg, clientID)
	case v1.MessageHeartbeat:
		r.handleHeartbeat(msg, clientID)
	case v1.MessageTaskResponse:
		r.handleTaskResponse(ctx, msg)
	case v1.ControlShutdown, v1.MessageAgentDeregister:
		r.handleShutdown(ctx, msg, clientID)
	default:
		r.logger.Debug("ignoring message",
			zap.String("message_type", msg.MessageType),
			zap.String("client_id", clientID))
	}
	return nil
}

func (r *Registry) handleHandshake(ctx context.Context, msg *v1.Message, clientID string) {
	bridge := &BridgeInfo{
		ClientID:      clientID,
		ServiceType:   stringField(msg.Payload, "service_type"),
		Version:       stringField(msg.Payload, "version"),
		Capabilities:  stringSlice(msg.Payload["capabilities"]),
		ConnectedAt:   time.Now().UTC(),
		LastHeartbeat: time.Now().UTC(),
	}
	if port, ok := msg.Payload["port"]; ok {
		bridge.Port = intValue(port)
	}

	r.mu.Lock()
	r.bridges[clientID] = bridge
	r.mu.Unlock()

	r.logger.Info("bridge connected",
		zap.String("client_id", clientID),
		zap.String("service_type", bridge.ServiceType),
		zap.String("version", bridge.Version))
	r.publish(ctx, bus.SubjectBridgeConnected, map[string]interface{}{
		"client_id":    clientID,
		"service_type": bridge.ServiceType,
	})
}

func (r *Registry) handleAgentRegistration(ctx context.Context, msg *v1.Message, clientID string) {
	agent := &RemoteAgent{
		Name:            stringField(msg.Payload, "agent_name"),
		Type:            stringField(msg.Payload, "agent_type"),
		Language:        stringField(msg.Payload, "language"),
		ServiceEndpoint: stringField(msg.Payload, "service_endpoint"),
		Status:          stringField(msg.Payload, "status"),
		Capabilities:    capabilityNames(msg.Payload["capabilities"]),
		BridgeClientID:  clientID,
		RegisteredAt:    time.Now().UTC(),
	}
	if agent.Name == "" {
		r.logger.Warn("agent registration without a name", zap.String("client_id", clientID))
		return
	}

	r.mu.Lock()
	r.agents[agent.Name] = agent
	r.mu.Unlock()

	r.logger.Info("remote agent registered",
		zap.String("agent", agent.Name),
		zap.Strings("capabilities", agent.Capabilities),
		zap.String("client_id", clientID))
	r.publish(ctx, bus.SubjectAgentRegistered, map[string]interface{}{
		"agent_name":   agent.Name,
		"capabilities": agent.Capabilities,
		"client_id":    clientID,
	})
}

func (r *Registry) handleHeartbeat(msg *v1.Message, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bridge, ok := r.bridges[clientID]
	if !ok {
		r.logger.Warn("heartbeat from unknown bridge", zap.String("client_id", clientID))
		return
	}
	bridge.LastHeartbeat = time.Now().UTC()
	_ = stringField(msg.Payload, "status")
}

func (r *Registry) handleTaskResponse(ctx context.Context, msg *v1.Message) {
	resp, err := v1.DecodeTaskResponse(msg.Payload)
	if err != nil {
		r.logger.Error("invalid task response", zap.Error(err))
		return
	}

	r.mu.RLock()
	ch, ok := r.pending[resp.TaskID]
	r.mu.RUnlock()
	if ok {
		select {
		case ch <- resp:
		default:
			r.logger.Warn("dropping task response update, waiter is behind",
				zap.String("task_id", resp.TaskID),
				zap.String("status", string(resp.Status)))
		}
	}

	if !resp.Status.IsTerminal() {
		return
	}
	subject := bus.SubjectTaskCompleted
	if resp.Status != v1.TaskStatusCompleted {
		subject = bus.SubjectTaskFailed
	}
	r.publish(ctx, subject, map[string]interface{}{
		"task_id":        resp.TaskID,
		"status":         string(resp.Status),
		"assigned_agent": resp.AssignedAgent,
	})
}

func (r *Registry) handleShutdown(ctx context.Context, msg *v1.Message, clientID string) {
	reason := stringField(msg.Payload, "reason")
	r.logger.Info("bridge announced shutdown",
		zap.String("client_id", clientID),
		zap.String("reason", reason))
	r.RemoveBridge(ctx, clientID)
}

// RemoveBridge drops a bridge and every agent registered through it. Safe
// to call for unknown or already-removed client ids.
func (r *Registry) RemoveBridge(ctx context.Context, clientID string) {
	r.mu.Lock()
	bridge, known := r.bridges[clientID]
	delete(r.bridges, clientID)

	var removed []string
	for name, agent := range r.agents {
		if agent.BridgeClientID == clientID {
			removed = append(removed, name)
			delete(r.agents, name)
		}
	}
	r.mu.Unlock()

	if !known && len(removed) == 0 {
		return
	}
	for _, name := range removed {
		r.publish(ctx, bus.SubjectAgentDeregistered, map[string]interface{}{
			"agent_name": name,
			"client_id":  clientID,
		})
	}
	serviceType := ""
	if bridge != nil {
		serviceType = bridge.ServiceType
	}
	r.publish(ctx, bus.SubjectBridgeDisconnected, map[string]interface{}{
		"client_id":    clientID,
		"service_type": serviceType,
	})
}

// PruneStale removes bridges whose last heartbeat is older than maxIdle
// and returns how many were dropped.
func (r *Registry) PruneStale(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxIdle)

	r.mu.RLock()
	var stale []string
	for clientID, bridge := range r.bridges {
		if bridge.LastHeartbeat.Before(cutoff) {
			stale = append(stale, clientID)
		}
	}
	r.mu.RUnlock()

	for _, clientID := range stale {
		r.logger.Warn("pruning stale bridge", zap.String("client_id", clientID))
		r.RemoveBridge(ctx, clientID)
	}
	return len(stale)
}

// ExecuteRemoteTask routes a task request to a bridge hosting a capable
// agent and waits for the terminal response. Non-terminal updates
// (ACCEPTED, RUNNING) are consumed along the way.
func (r *Registry) ExecuteRemoteTask(ctx context.Context, req *v1.TaskRequest) (*v1.TaskResponse, error) {
	agent := r.selectAgent(req)
	if agent == nil {
		return nil, apperrors.AgentUnavailable("No capable agent found")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.DefaultTaskTimeout)
		defer cancel()
	}

	ch := make(chan *v1.TaskResponse, 4)
	r.mu.Lock()
	if _, exists := r.pending[req.TaskID]; exists {
		r.mu.Unlock()
		return nil, apperrors.InvalidParameters(fmt.Sprintf("task %s already in flight", req.TaskID))
	}
	r.pending[req.TaskID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, req.TaskID)
		r.mu.Unlock()
	}()

	payload, err := v1.EncodePayload(req)
	if err != nil {
		return nil, apperrors.Internal("failed to encode task request", err)
	}
	wireCtx := v1.NewContext(req.TaskID)
	if deadline, ok := ctx.Deadline(); ok {
		wireCtx.TimeoutMs = time.Until(deadline).Milliseconds()
	}
	msg := v1.NewMessage(v1.MessageTaskRequest, r.cfg.Name, agent.BridgeClientID, payload, wireCtx)

	if err := r.sender.SendTo(agent.BridgeClientID, msg); err != nil {
		return nil, apperrors.Wrap(err, "failed to send task request")
	}

	for {
		select {
		case <-ctx.Done():
			return nil, apperrors.TaskTimeout(fmt.Sprintf("task %s did not complete in time", req.TaskID))
		case resp := <-ch:
			if resp.Status.IsTerminal() {
				return resp, nil
			}
		}
	}
}

// selectAgent picks the preferred agent when present, otherwise the first
// ready agent covering the required capabilities.
func (r *Registry) selectAgent(req *v1.TaskRequest) *RemoteAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if req.PreferredAgent != "" {
		if agent, ok := r.agents[req.PreferredAgent]; ok {
			return agent
		}
	}

	required := stringSlice(req.Parameters["required_capabilities"])
	if len(required) == 0 {
		required = []string{req.TaskType}
	}
	for _, agent := range r.agents {
		if agent.Status != "" && agent.Status != "ready" {
			continue
		}
		if covers(agent.Capabilities, required) {
			return agent
		}
	}
	return nil
}

// Bridges returns a snapshot of connected bridges.
func (r *Registry) Bridges() []BridgeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BridgeInfo, 0, len(r.bridges))
	for _, bridge := range r.bridges {
		out = append(out, *bridge)
	}
	return out
}

// RemoteAgents lists registered agents in the shape the gateway reports.
func (r *Registry) RemoteAgents() []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]map[string]interface{}, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, map[string]interface{}{
			"name":             agent.Name,
			"type":             agent.Type,
			"language":         agent.Language,
			"service_endpoint": agent.ServiceEndpoint,
			"status":           agent.Status,
			"capabilities":     agent.Capabilities,
			"bridge_client_id": agent.BridgeClientID,
			"registered_at":    agent.RegisteredAt.Format(time.RFC3339Nano),
		})
	}
	return out
}

// AgentCount returns the number of registered remote agents.
func (r *Registry) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) publish(ctx context.Context, subject string, data map[string]interface{}) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, subject, bus.NewEvent(subject, r.cfg.Name, data)); err != nil {
		r.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// covers reports whether have contains every entry of want.
func covers(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	for _, c := range want {
		if _, ok := set[c]; !ok {
			return false
		}
	}
	return true
}

func stringField(payload map[string]interface{}, key string) string {
	if raw, ok := payload[key].(string); ok {
		return raw
	}
	return ""
}

func stringSlice(raw interface{}) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// capabilityNames flattens a registration capability list, which carries
// either plain strings or {name, category, priority} records.
func capabilityNames(raw interface{}) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return stringSlice(raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]interface{}:
			if name, ok := v["name"].(string); ok {
				out = append(out, name)
			}
		case map[interface{}]interface{}:
			if name, ok := v["name"].(string); ok {
				out = append(out, name)
			}
		}
	}
	return out
}

func intValue(raw interface{}) int {
	switch v := raw.(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
