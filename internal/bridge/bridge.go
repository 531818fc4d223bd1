package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/cartrita/mcp/internal/common/errors"
	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/transport"
	v1 "github.com/cartrita/mcp/pkg/mcp/v1"
)

// Common errors.
var (
	ErrAgentExists    = errors.New("agent already registered")
	ErrNotInitialized = errors.New("bridge not initialized")
)

// Config configures a worker-process bridge.
type Config struct {
	SocketPath     string
	MaxFrameSize   int
	ConnectTimeout time.Duration

	ServiceName  string // address this bridge answers to on the wire
	ServicePort  int    // HTTP surface port announced in the handshake, 0 if none
	Version      string
	Orchestrator string // recipient address for bridge-initiated messages

	HeartbeatInterval  time.Duration
	HeartbeatRetryWait time.Duration

	// MaxConcurrentTasks is a soft cap on the active-task map; 0 means
	// unbounded. Exceeding it fails the request with QUEUE_FULL.
	MaxConcurrentTasks int
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "worker-bridge"
	}
	if c.Version == "" {
		c.Version = "1.0.0"
	}
	if c.Orchestrator == "" {
		c.Orchestrator = "orchestrator"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatRetryWait <= 0 {
		c.HeartbeatRetryWait = 5 * time.Second
	}
}

// Stats is a snapshot of the bridge's counters.
type Stats struct {
	MessagesSent       int64      `json:"messages_sent"`
	MessagesReceived   int64      `json:"messages_received"`
	TasksExecuted      int64      `json:"tasks_executed"`
	AgentsRegistered   int64      `json:"agents_registered"`
	ConnectionFailures int64      `json:"connection_failures"`
	LastHeartbeat      *time.Time `json:"last_heartbeat,omitempty"`
}

// Bridge is the per-worker-process singleton owning the transport connection
// and the active-task map.
type Bridge struct {
	cfg    Config
	client *transport.Client
	logger *logger.Logger

	mu              sync.RWMutex
	agents          map[string]Agent
	agentOrder      []string // registration order breaks dispatch ties
	capabilityIndex map[string][]string
	activeTasks     map[string]context.CancelFunc
	results         map[string]*v1.TaskResponse
	stats           Stats
	connected       bool
	shuttingDown    bool

	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a bridge. Call Initialize to connect and start heartbeats.
func New(cfg Config, log *logger.Logger) *Bridge {
	cfg.applyDefaults()
	return &Bridge{
		cfg:             cfg,
		logger:          log.WithFields(zap.String("component", "bridge"), zap.String("service", cfg.ServiceName)),
		agents:          make(map[string]Agent),
		capabilityIndex: make(map[string][]string),
		activeTasks:     make(map[string]context.CancelFunc),
		results:         make(map[string]*v1.TaskResponse),
	}
}

// Initialize connects to the orchestrator socket, sends the handshake, and
// starts the heartbeat loop.
func (b *Bridge) Initialize(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)

	b.client = transport.NewClient(transport.ClientConfig{
		SocketPath:     b.cfg.SocketPath,
		MaxFrameSize:   b.cfg.MaxFrameSize,
		ConnectTimeout: b.cfg.ConnectTimeout,
	}, b.handleMessage, b.logger)

	if err := b.client.Connect(loopCtx); err != nil {
		cancel()
		b.mu.Lock()
		b.stats.ConnectionFailures++
		b.mu.Unlock()
		return fmt.Errorf("failed to connect to orchestrator: %w", err)
	}

	b.mu.Lock()
	b.cancel = cancel
	b.connected = true
	b.startedAt = time.Now()
	b.mu.Unlock()

	handshake := map[string]interface{}{
		"service_type": b.cfg.ServiceName,
		"version":      b.cfg.Version,
		"capabilities": []string{"agent_registration", "task_execution", "streaming"},
	}
	if b.cfg.ServicePort > 0 {
		handshake["port"] = b.cfg.ServicePort
	}
	if err := b.send(b.newMessage(v1.ControlHandshake, handshake)); err != nil {
		b.Shutdown()
		return fmt.Errorf("handshake failed: %w", err)
	}

	b.wg.Add(1)
	go b.heartbeatLoop(loopCtx)

	b.logger.Info("bridge initialized", zap.String("socket_path", b.cfg.SocketPath))
	return nil
}

// RegisterAgent announces an agent to the orchestrator, records it locally,
// and updates the inverted capability index.
func (b *Bridge) RegisterAgent(agent Agent) error {
	b.mu.Lock()
	if _, exists := b.agents[agent.Name()]; exists {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentExists, agent.Name())
	}
	b.agents[agent.Name()] = agent
	b.agentOrder = append(b.agentOrder, agent.Name())
	for _, c := range agent.Capabilities() {
		b.capabilityIndex[c.Name] = append(b.capabilityIndex[c.Name], agent.Name())
	}
	b.stats.AgentsRegistered++
	b.mu.Unlock()

	capabilities := make([]map[string]interface{}, 0, len(agent.Capabilities()))
	for _, c := range agent.Capabilities() {
		capabilities = append(capabilities, map[string]interface{}{
			"name":     c.Name,
			"category": c.Category,
			"priority": c.Priority,
		})
	}

	registration := b.newMessage(v1.ControlAgentRegistration, map[string]interface{}{
		"agent_name":       agent.Name(),
		"agent_type":       string(v1.AgentTypeSubAgent),
		"language":         "go",
		"capabilities":     capabilities,
		"service_endpoint": fmt.Sprintf("go://localhost:%d/%s", b.cfg.ServicePort, agent.Name()),
		"status":           "ready",
	})
	if err := b.send(registration); err != nil {
		return fmt.Errorf("failed to register agent %s: %w", agent.Name(), err)
	}

	b.logger.Info("registered agent", zap.String("agent", agent.Name()))
	return nil
}

// handleMessage dispatches incoming messages by type. Receive-loop errors
// are absorbed per message; the connection stays open.
func (b *Bridge) handleMessage(ctx context.Context, msg *v1.Message, _ string) error {
	b.mu.Lock()
	b.stats.MessagesReceived++
	b.mu.Unlock()

	switch msg.MessageType {
	case v1.MessageTaskRequest:
		return b.handleTaskRequest(ctx, msg)
	case v1.MessageTaskCancel:
		return b.handleTaskCancel(msg)
	case v1.MessageHeartbeat:
		return b.handleHeartbeat(msg)
	case v1.ControlAgentQuery:
		return b.handleAgentQuery(msg)
	case v1.ControlStatusRequest:
		return b.handleStatusRequest(msg)
	case v1.ControlShutdown, v1.MessageEmergencyStop:
		b.logger.Info("shutdown requested by orchestrator", zap.String("message_type", msg.MessageType))
		// Shutdown waits for the receive loop; calling it inline from the
		// handler would deadlock.
		go b.Shutdown()
		return nil
	default:
		b.logger.Warn("unknown message type", zap.String("message_type", msg.MessageType))
		return nil
	}
}

func (b *Bridge) handleTaskRequest(ctx context.Context, msg *v1.Message) error {
	req, err := v1.DecodeTaskRequest(msg.Payload)
	if err != nil {
		return b.sendFailure(msg, "", err.Error(), apperrors.CodeOf(err))
	}

	b.mu.Lock()
	if _, dup := b.activeTasks[req.TaskID]; dup {
		b.mu.Unlock()
		return b.sendFailure(msg, req.TaskID, "duplicate task id", v1.ErrCodeInvalidParameters)
	}
	if b.cfg.MaxConcurrentTasks > 0 && len(b.activeTasks) >= b.cfg.MaxConcurrentTasks {
		b.mu.Unlock()
		return b.sendFailure(msg, req.TaskID, "active task limit reached", v1.ErrCodeQueueFull)
	}

	var selected Agent
	for _, name := range b.agentOrder {
		if agent := b.agents[name]; canHandle(agent, req) {
			selected = agent
			break
		}
	}
	if selected == nil {
		b.mu.Unlock()
		return b.sendFailure(msg, req.TaskID, "No capable agent found", v1.ErrCodeAgentUnavailable)
	}

	var taskCtx context.Context
	var cancel context.CancelFunc
	if msg.Context.TimeoutMs > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, time.Duration(msg.Context.TimeoutMs)*time.Millisecond)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	b.activeTasks[req.TaskID] = cancel
	b.mu.Unlock()

	// Exactly one ACCEPTED update before RUNNING.
	accepted := msg.Reply(v1.MessageTaskResponse, map[string]interface{}{
		"task_id":        req.TaskID,
		"status":         string(v1.TaskStatusAccepted),
		"assigned_agent": selected.Name(),
	})
	if err := b.send(accepted); err != nil {
		b.logger.Error("failed to send acceptance", zap.String("task_id", req.TaskID), zap.Error(err))
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.executeTask(taskCtx, selected, req, msg)
	}()
	return nil
}

// executeTask sends a RUNNING update, invokes the agent, and sends exactly
// one terminal response carrying the wall-clock execution time.
func (b *Bridge) executeTask(ctx context.Context, agent Agent, req *v1.TaskRequest, msg *v1.Message) {
	running := msg.Reply(v1.MessageTaskResponse, map[string]interface{}{
		"task_id":        req.TaskID,
		"status":         string(v1.TaskStatusRunning),
		"assigned_agent": agent.Name(),
	})
	if err := b.send(running); err != nil {
		b.logger.Error("failed to send running update", zap.String("task_id", req.TaskID), zap.Error(err))
	}

	start := time.Now()
	resp, execErr := agent.Execute(ctx, req)
	elapsed := time.Since(start).Milliseconds()

	final := b.terminalResponse(ctx, req, resp, execErr)
	final.AssignedAgent = agent.Name()
	final.Metrics.ProcessingTimeMs = elapsed

	// Settle bookkeeping before the terminal response leaves the process so
	// observers never see a finished task still counted as active.
	b.mu.Lock()
	if cancel, ok := b.activeTasks[req.TaskID]; ok {
		delete(b.activeTasks, req.TaskID)
		cancel()
	}
	b.stats.TasksExecuted++
	b.results[req.TaskID] = final
	b.mu.Unlock()

	payload, err := v1.EncodePayload(final)
	if err != nil {
		b.logger.Error("failed to encode task response", zap.String("task_id", req.TaskID), zap.Error(err))
		return
	}
	if err := b.send(msg.Reply(v1.MessageTaskResponse, payload)); err != nil {
		b.logger.Error("failed to send terminal response",
			zap.String("task_id", req.TaskID),
			zap.String("status", string(final.Status)),
			zap.Error(err))
		return
	}

	b.logger.Info("task finished",
		zap.String("task_id", req.TaskID),
		zap.String("agent", agent.Name()),
		zap.String("status", string(final.Status)),
		zap.Int64("execution_time_ms", elapsed))
}

// terminalResponse maps an execution outcome to exactly one terminal status.
func (b *Bridge) terminalResponse(ctx context.Context, req *v1.TaskRequest, resp *v1.TaskResponse, execErr error) *v1.TaskResponse {
	switch {
	case execErr != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &v1.TaskResponse{
			TaskID:       req.TaskID,
			Status:       v1.TaskStatusTimeout,
			ErrorMessage: "task context timeout expired",
			ErrorCode:    v1.ErrCodeTaskTimeout,
		}
	case execErr != nil && errors.Is(ctx.Err(), context.Canceled):
		return &v1.TaskResponse{
			TaskID:       req.TaskID,
			Status:       v1.TaskStatusCancelled,
			ErrorMessage: "task cancelled",
			ErrorCode:    v1.ErrCodeTaskCancelled,
		}
	case execErr != nil:
		return &v1.TaskResponse{
			TaskID:       req.TaskID,
			Status:       v1.TaskStatusFailed,
			ErrorMessage: execErr.Error(),
			ErrorCode:    apperrors.CodeOf(execErr),
		}
	case resp == nil:
		return &v1.TaskResponse{
			TaskID:       req.TaskID,
			Status:       v1.TaskStatusFailed,
			ErrorMessage: "agent returned no response",
			ErrorCode:    v1.ErrCodeAgentError,
		}
	default:
		if resp.TaskID == "" {
			resp.TaskID = req.TaskID
		}
		if !resp.Status.IsTerminal() {
			resp.Status = v1.TaskStatusCompleted
		}
		return resp
	}
}

func (b *Bridge) handleTaskCancel(msg *v1.Message) error {
	taskID, _ := msg.Payload["task_id"].(string)
	b.mu.Lock()
	cancel, ok := b.activeTasks[taskID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	cancel()
	b.logger.Info("cancelled task on request", zap.String("task_id", taskID))
	return nil
}

func (b *Bridge) handleHeartbeat(msg *v1.Message) error {
	b.mu.RLock()
	payload := map[string]interface{}{
		"status":            "healthy",
		"active_tasks":      len(b.activeTasks),
		"registered_agents": len(b.agents),
		"stats":             b.statsMap(),
	}
	b.mu.RUnlock()
	return b.send(msg.Reply(v1.ControlHeartbeatResponse, payload))
}

func (b *Bridge) handleAgentQuery(msg *v1.Message) error {
	var required []string
	if raw, ok := msg.Payload["capabilities"].([]interface{}); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				required = append(required, s)
			}
		}
	}

	b.mu.RLock()
	matching := make([]map[string]interface{}, 0)
	for _, name := range b.agentOrder {
		agent := b.agents[name]
		if !capabilityIntersects(agent, required) {
			continue
		}
		caps := make([]map[string]interface{}, 0, len(agent.Capabilities()))
		for _, c := range agent.Capabilities() {
			caps = append(caps, map[string]interface{}{
				"name":     c.Name,
				"category": c.Category,
				"priority": c.Priority,
			})
		}
		matching = append(matching, map[string]interface{}{
			"name":         name,
			"capabilities": caps,
			"status":       "ready",
		})
	}
	total := len(b.agents)
	b.mu.RUnlock()

	return b.send(msg.Reply(v1.ControlAgentQueryResponse, map[string]interface{}{
		"matching_agents": matching,
		"total_agents":    total,
	}))
}

func capabilityIntersects(agent Agent, required []string) bool {
	for _, c := range agent.Capabilities() {
		for _, want := range required {
			if c.Name == want {
				return true
			}
		}
	}
	return false
}

func (b *Bridge) handleStatusRequest(msg *v1.Message) error {
	b.mu.RLock()
	status := "healthy"
	if !b.connected {
		status = "disconnected"
	}
	index := make(map[string]interface{}, len(b.capabilityIndex))
	for name, agents := range b.capabilityIndex {
		index[name] = agents
	}
	payload := map[string]interface{}{
		"bridge_status":     status,
		"registered_agents": len(b.agents),
		"active_tasks":      len(b.activeTasks),
		"capability_index":  index,
		"statistics":        b.statsMap(),
		"uptime":            time.Since(b.startedAt).Seconds(),
	}
	b.mu.RUnlock()
	return b.send(msg.Reply(v1.ControlStatusResponse, payload))
}

// heartbeatLoop emits a heartbeat every interval; a send failure pauses for
// the retry wait before trying again.
func (b *Bridge) heartbeatLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		heartbeat := b.newMessage(v1.MessageHeartbeat, map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})

		wait := b.cfg.HeartbeatInterval
		if err := b.send(heartbeat); err != nil {
			b.logger.Error("heartbeat failed", zap.Error(err))
			wait = b.cfg.HeartbeatRetryWait
		} else {
			now := time.Now().UTC()
			b.mu.Lock()
			b.stats.LastHeartbeat = &now
			b.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Shutdown cancels active tasks, notifies the orchestrator, and closes the
// transport. Calling it more than once is indistinguishable from calling it
// once.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	if b.shuttingDown {
		b.mu.Unlock()
		return
	}
	b.shuttingDown = true
	cancels := make([]context.CancelFunc, 0, len(b.activeTasks))
	for taskID, cancel := range b.activeTasks {
		cancels = append(cancels, cancel)
		b.logger.Info("cancelling active task", zap.String("task_id", taskID))
	}
	connected := b.connected
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	if connected {
		notice := b.newMessage(v1.ControlShutdown, map[string]interface{}{
			"reason": "graceful_shutdown",
		})
		if err := b.send(notice); err != nil {
			b.logger.Warn("failed to send shutdown notice", zap.Error(err))
		}
	}

	if b.cancel != nil {
		b.cancel()
	}
	if b.client != nil {
		b.client.Disconnect()
	}

	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("bridge shutdown complete")
}

// IsConnected reports whether the transport connection is up.
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected && b.client != nil && b.client.IsConnected()
}

// Result returns the retained response for a finished task.
func (b *Bridge) Result(taskID string) (*v1.TaskResponse, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	resp, ok := b.results[taskID]
	return resp, ok
}

// ActiveTaskCount returns the number of in-flight tasks.
func (b *Bridge) ActiveTaskCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.activeTasks)
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// statsMap renders the counters for wire payloads. Callers hold b.mu.
func (b *Bridge) statsMap() map[string]interface{} {
	m := map[string]interface{}{
		"messages_sent":       b.stats.MessagesSent,
		"messages_received":   b.stats.MessagesReceived,
		"tasks_executed":      b.stats.TasksExecuted,
		"agents_registered":   b.stats.AgentsRegistered,
		"connection_failures": b.stats.ConnectionFailures,
	}
	if b.stats.LastHeartbeat != nil {
		m["last_heartbeat"] = b.stats.LastHeartbeat.Format(time.RFC3339Nano)
	}
	return m
}

// newMessage builds a bridge-initiated message addressed to the orchestrator.
func (b *Bridge) newMessage(messageType string, payload map[string]interface{}) *v1.Message {
	return v1.NewMessage(messageType, b.cfg.ServiceName, b.cfg.Orchestrator, payload, v1.NewContext(fmt.Sprintf("bridge-%d", time.Now().UnixNano())))
}

// sendFailure sends one failed task response correlated to the request.
func (b *Bridge) sendFailure(msg *v1.Message, taskID, errMsg, errCode string) error {
	return b.send(msg.Reply(v1.MessageTaskResponse, map[string]interface{}{
		"task_id":       taskID,
		"status":        string(v1.TaskStatusFailed),
		"error_message": errMsg,
		"error_code":    errCode,
	}))
}

// send writes one message and bumps the sent counter.
func (b *Bridge) send(msg *v1.Message) error {
	if b.client == nil {
		return ErrNotInitialized
	}
	if err := b.client.Send(msg); err != nil {
		return err
	}
	b.mu.Lock()
	b.stats.MessagesSent++
	b.mu.Unlock()
	return nil
}
