package bridge

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/transport"
	v1 "github.com/cartrita/mcp/pkg/mcp/v1"
)

// orchestratorHarness runs a real unix-socket server and records everything
// the bridge sends to it.
type orchestratorHarness struct {
	t      *testing.T
	server *transport.Server
	path   string

	mu   sync.Mutex
	msgs []*v1.Message
	ch   chan *v1.Message
}

func newHarness(t *testing.T) *orchestratorHarness {
	t.Helper()
	h := &orchestratorHarness{
		t:    t,
		path: filepath.Join(t.TempDir(), "bridge_test.sock"),
		ch:   make(chan *v1.Message, 64),
	}
	h.server = transport.NewServer(transport.ServerConfig{SocketPath: h.path}, h.handle, logger.Default())
	if err := h.server.Start(context.Background()); err != nil {
		t.Fatalf("server start failed: %v", err)
	}
	t.Cleanup(func() { h.server.Stop() })
	return h
}

func (h *orchestratorHarness) handle(_ context.Context, msg *v1.Message, _ string) error {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
	h.ch <- msg
	return nil
}

// waitFor returns the next message of the given type, skipping others
// (heartbeats arrive at unpredictable points).
func (h *orchestratorHarness) waitFor(messageType string) *v1.Message {
	h.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-h.ch:
			if msg.MessageType == messageType {
				return msg
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s", messageType)
			return nil
		}
	}
}

// waitForResponse returns the next TASK_RESPONSE correlated to reqID.
func (h *orchestratorHarness) waitForResponse(reqID string) *v1.Message {
	h.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-h.ch:
			if msg.MessageType == v1.MessageTaskResponse && msg.CorrelationID == reqID {
				return msg
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for response to %s", reqID)
			return nil
		}
	}
}

func newTestBridge(t *testing.T, h *orchestratorHarness, maxTasks int) *Bridge {
	t.Helper()
	b := New(Config{
		SocketPath:         h.path,
		ServiceName:        "test-bridge",
		HeartbeatInterval:  time.Hour, // only the initial beat fires during a test
		MaxConcurrentTasks: maxTasks,
	}, logger.Default())
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("bridge initialize failed: %v", err)
	}
	t.Cleanup(b.Shutdown)

	// Broadcasts reach nobody until the accept loop has registered the
	// bridge's connection.
	deadline := time.Now().Add(2 * time.Second)
	for h.server.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.server.ClientCount() == 0 {
		t.Fatal("bridge connection never reached the server")
	}
	return b
}

func echoAgent(name string, capabilities ...string) *AgentFunc {
	caps := make([]Capability, 0, len(capabilities))
	for _, c := range capabilities {
		caps = append(caps, Capability{Name: c, Category: "test", Priority: 5})
	}
	return &AgentFunc{
		AgentName: name,
		Caps:      caps,
		Fn: func(ctx context.Context, req *v1.TaskRequest) (*v1.TaskResponse, error) {
			time.Sleep(5 * time.Millisecond)
			return &v1.TaskResponse{
				TaskID: req.TaskID,
				Status: v1.TaskStatusCompleted,
				Result: map[string]interface{}{"echo": req.TaskType},
			}, nil
		},
	}
}

func sendTask(t *testing.T, h *orchestratorHarness, req *v1.TaskRequest) *v1.Message {
	t.Helper()
	payload, err := v1.EncodePayload(req)
	if err != nil {
		t.Fatalf("encode request failed: %v", err)
	}
	msg := v1.NewMessage(v1.MessageTaskRequest, "orchestrator", "test-bridge", payload, v1.NewContext("req-"+req.TaskID))
	h.server.Broadcast(msg)
	return msg
}

func TestBridgeHandshakeAndRegistration(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 0)

	handshake := h.waitFor(v1.ControlHandshake)
	if got, _ := handshake.Payload["service_type"].(string); got != "test-bridge" {
		t.Errorf("handshake service_type = %q, want test-bridge", got)
	}

	if err := b.RegisterAgent(echoAgent("echo", "system.health_check")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	reg := h.waitFor(v1.ControlAgentRegistration)
	if got, _ := reg.Payload["agent_name"].(string); got != "echo" {
		t.Errorf("registration agent_name = %q, want echo", got)
	}
	if got, _ := reg.Payload["language"].(string); got != "go" {
		t.Errorf("registration language = %q, want go", got)
	}

	if err := b.RegisterAgent(echoAgent("echo", "other")); err == nil {
		t.Error("duplicate agent registration must fail")
	}
}

func TestBridgeTaskLifecycle(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 0)
	if err := b.RegisterAgent(echoAgent("echo", "system.health_check")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	req := sendTask(t, h, v1.NewTaskRequest("system.health_check", "t-1", nil))

	accepted := h.waitForResponse(req.ID)
	if status, _ := accepted.Payload["status"].(string); status != string(v1.TaskStatusAccepted) {
		t.Fatalf("first response status = %q, want ACCEPTED", status)
	}
	running := h.waitForResponse(req.ID)
	if status, _ := running.Payload["status"].(string); status != string(v1.TaskStatusRunning) {
		t.Fatalf("second response status = %q, want RUNNING", status)
	}

	final := h.waitForResponse(req.ID)
	resp, err := v1.DecodeTaskResponse(final.Payload)
	if err != nil {
		t.Fatalf("decode final response failed: %v", err)
	}
	if resp.Status != v1.TaskStatusCompleted {
		t.Errorf("final status = %s, want COMPLETED", resp.Status)
	}
	if resp.AssignedAgent != "echo" {
		t.Errorf("assigned_agent = %q, want echo", resp.AssignedAgent)
	}
	if resp.Metrics.ProcessingTimeMs <= 0 {
		t.Errorf("processing_time_ms = %d, want > 0", resp.Metrics.ProcessingTimeMs)
	}
	if resp.TaskID != "t-1" {
		t.Errorf("task_id = %q, want t-1", resp.TaskID)
	}

	if cached, ok := b.Result("t-1"); !ok || cached.Status != v1.TaskStatusCompleted {
		t.Error("bridge must retain the terminal response")
	}
}

func TestBridgeNoCapableAgent(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 0)
	if err := b.RegisterAgent(echoAgent("echo", "code.generate")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	req := sendTask(t, h, v1.NewTaskRequest("vision.analyze_image", "t-nocap", nil))
	resp := h.waitForResponse(req.ID)
	if status, _ := resp.Payload["status"].(string); status != string(v1.TaskStatusFailed) {
		t.Fatalf("status = %q, want FAILED", status)
	}
	if code, _ := resp.Payload["error_code"].(string); code != v1.ErrCodeAgentUnavailable {
		t.Errorf("error_code = %q, want AGENT_UNAVAILABLE", code)
	}
	if msg, _ := resp.Payload["error_message"].(string); msg != "No capable agent found" {
		t.Errorf("error_message = %q", msg)
	}
}

func TestBridgeRequiredCapabilitiesParameter(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 0)
	if err := b.RegisterAgent(echoAgent("specialist", "image_analysis")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	req := sendTask(t, h, v1.NewTaskRequest("vision.analyze_image", "t-caps", map[string]interface{}{
		"required_capabilities": []string{"image_analysis"},
	}))

	var final *v1.TaskResponse
	for {
		msg := h.waitForResponse(req.ID)
		resp, err := v1.DecodeTaskResponse(msg.Payload)
		if err != nil {
			t.Fatalf("decode response failed: %v", err)
		}
		if resp.Status.IsTerminal() {
			final = resp
			break
		}
	}
	if final.Status != v1.TaskStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", final.Status)
	}
	if final.AssignedAgent != "specialist" {
		t.Errorf("assigned_agent = %q, want specialist", final.AssignedAgent)
	}
}

func TestBridgeTaskTimeout(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 0)

	stuck := &AgentFunc{
		AgentName: "stuck",
		Caps:      []Capability{{Name: "system.health_check", Category: "test", Priority: 5}},
		Fn: func(ctx context.Context, req *v1.TaskRequest) (*v1.TaskResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	if err := b.RegisterAgent(stuck); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	payload, err := v1.EncodePayload(v1.NewTaskRequest("system.health_check", "t-timeout", nil))
	if err != nil {
		t.Fatalf("encode request failed: %v", err)
	}
	wireCtx := v1.NewContext("req-t-timeout")
	wireCtx.TimeoutMs = 50
	req := v1.NewMessage(v1.MessageTaskRequest, "orchestrator", "test-bridge", payload, wireCtx)
	h.server.Broadcast(req)

	var final *v1.TaskResponse
	for {
		msg := h.waitForResponse(req.ID)
		resp, err := v1.DecodeTaskResponse(msg.Payload)
		if err != nil {
			t.Fatalf("decode response failed: %v", err)
		}
		if resp.Status.IsTerminal() {
			final = resp
			break
		}
	}
	if final.Status != v1.TaskStatusTimeout {
		t.Errorf("status = %s, want TIMEOUT", final.Status)
	}
	if final.ErrorCode != v1.ErrCodeTaskTimeout {
		t.Errorf("error_code = %q, want TASK_TIMEOUT", final.ErrorCode)
	}
}

func TestBridgeDuplicateTaskID(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 0)

	release := make(chan struct{})
	blocking := &AgentFunc{
		AgentName: "slow",
		Caps:      []Capability{{Name: "system.health_check", Category: "test", Priority: 5}},
		Fn: func(ctx context.Context, req *v1.TaskRequest) (*v1.TaskResponse, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return &v1.TaskResponse{TaskID: req.TaskID, Status: v1.TaskStatusCompleted}, nil
		},
	}
	if err := b.RegisterAgent(blocking); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	first := sendTask(t, h, v1.NewTaskRequest("system.health_check", "t-dup", nil))
	if status, _ := h.waitForResponse(first.ID).Payload["status"].(string); status != string(v1.TaskStatusAccepted) {
		t.Fatalf("first task not accepted, status = %q", status)
	}

	second := sendTask(t, h, v1.NewTaskRequest("system.health_check", "t-dup", nil))
	dup := h.waitForResponse(second.ID)
	if code, _ := dup.Payload["error_code"].(string); code != v1.ErrCodeInvalidParameters {
		t.Errorf("duplicate error_code = %q, want INVALID_PARAMETERS", code)
	}

	close(release)
}

func TestBridgeConcurrencyLimit(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 1)

	release := make(chan struct{})
	blocking := &AgentFunc{
		AgentName: "slow",
		Caps:      []Capability{{Name: "system.health_check", Category: "test", Priority: 5}},
		Fn: func(ctx context.Context, req *v1.TaskRequest) (*v1.TaskResponse, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return &v1.TaskResponse{TaskID: req.TaskID, Status: v1.TaskStatusCompleted}, nil
		},
	}
	if err := b.RegisterAgent(blocking); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	first := sendTask(t, h, v1.NewTaskRequest("system.health_check", "t-a", nil))
	if status, _ := h.waitForResponse(first.ID).Payload["status"].(string); status != string(v1.TaskStatusAccepted) {
		t.Fatalf("first task not accepted, status = %q", status)
	}

	second := sendTask(t, h, v1.NewTaskRequest("system.health_check", "t-b", nil))
	overflow := h.waitForResponse(second.ID)
	if code, _ := overflow.Payload["error_code"].(string); code != v1.ErrCodeQueueFull {
		t.Errorf("overflow error_code = %q, want QUEUE_FULL", code)
	}

	close(release)
}

func TestBridgeHeartbeatAndStatus(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 0)
	if err := b.RegisterAgent(echoAgent("echo", "system.health_check")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	h.waitFor(v1.ControlHandshake)

	hb := v1.NewMessage(v1.MessageHeartbeat, "orchestrator", "test-bridge", map[string]interface{}{}, v1.NewContext("hb-1"))
	h.server.Broadcast(hb)
	hbResp := h.waitFor(v1.ControlHeartbeatResponse)
	if hbResp.CorrelationID != hb.ID {
		t.Errorf("heartbeat response correlation = %s, want %s", hbResp.CorrelationID, hb.ID)
	}
	if got, _ := hbResp.Payload["status"].(string); got != "healthy" {
		t.Errorf("heartbeat status = %q, want healthy", got)
	}

	status := v1.NewMessage(v1.ControlStatusRequest, "orchestrator", "test-bridge", map[string]interface{}{}, v1.NewContext("st-1"))
	h.server.Broadcast(status)
	stResp := h.waitFor(v1.ControlStatusResponse)
	if got, _ := stResp.Payload["bridge_status"].(string); got != "healthy" {
		t.Errorf("bridge_status = %q, want healthy", got)
	}
	if _, ok := stResp.Payload["capability_index"]; !ok {
		t.Error("status response must include the capability index")
	}
}

func TestBridgeAgentQuery(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 0)
	if err := b.RegisterAgent(echoAgent("coder", "code.generate")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := b.RegisterAgent(echoAgent("viewer", "vision.analyze_image")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	query := v1.NewMessage(v1.ControlAgentQuery, "orchestrator", "test-bridge", map[string]interface{}{
		"capabilities": []interface{}{"code.generate"},
	}, v1.NewContext("q-1"))
	h.server.Broadcast(query)

	resp := h.waitFor(v1.ControlAgentQueryResponse)
	matching, _ := resp.Payload["matching_agents"].([]interface{})
	if len(matching) != 1 {
		t.Fatalf("matching agents = %d, want 1", len(matching))
	}
	entry, _ := matching[0].(map[string]interface{})
	if name, _ := entry["name"].(string); name != "coder" {
		t.Errorf("matched agent = %q, want coder", name)
	}
}

func TestBridgeShutdownIsIdempotent(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 0)
	h.waitFor(v1.ControlHandshake)

	b.Shutdown()
	notice := h.waitFor(v1.ControlShutdown)
	if reason, _ := notice.Payload["reason"].(string); reason != "graceful_shutdown" {
		t.Errorf("shutdown reason = %q, want graceful_shutdown", reason)
	}
	if b.IsConnected() {
		t.Error("bridge must report disconnected after shutdown")
	}

	// Second call must be a no-op.
	b.Shutdown()
}

func TestBridgeStatsCounters(t *testing.T) {
	h := newHarness(t)
	b := newTestBridge(t, h, 0)
	if err := b.RegisterAgent(echoAgent("echo", "system.health_check")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	req := sendTask(t, h, v1.NewTaskRequest("system.health_check", "t-stats", nil))
	for {
		msg := h.waitForResponse(req.ID)
		if status, _ := msg.Payload["status"].(string); v1.TaskStatus(status).IsTerminal() {
			break
		}
	}

	stats := b.Stats()
	if stats.AgentsRegistered != 1 {
		t.Errorf("agents_registered = %d, want 1", stats.AgentsRegistered)
	}
	if stats.TasksExecuted != 1 {
		t.Errorf("tasks_executed = %d, want 1", stats.TasksExecuted)
	}
	if stats.MessagesReceived == 0 || stats.MessagesSent == 0 {
		t.Error("message counters must advance")
	}
}
