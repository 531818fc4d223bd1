package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cartrita/mcp/internal/common/errors"
	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/events/bus"
	v1 "github.com/cartrita/mcp/pkg/mcp/v1"
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

// fakeSender records outgoing messages and optionally feeds responses back
// into the registry.
type fakeSender struct {
	mu      sync.Mutex
	sent    []*v1.Message
	onSend  func(clientID string, msg *v1.Message)
	sendErr error
}

func (f *fakeSender) SendTo(clientID string, msg *v1.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	onSend := f.onSend
	f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}
	if onSend != nil {
		onSend(clientID, msg)
	}
	return nil
}

func bridgeMessage(messageType string, payload map[string]interface{}) *v1.Message {
	return v1.NewMessage(messageType, "worker-bridge", "orchestrator", payload, v1.NewContext("req"))
}

func handshake(t *testing.T, r *Registry, clientID string) {
	t.Helper()
	err := r.HandleMessage(context.Background(), bridgeMessage(v1.ControlHandshake, map[string]interface{}{
		"service_type": "worker-bridge",
		"version":      "1.0.0",
		"capabilities": []interface{}{"agent_registration", "task_execution"},
		"port":         8080,
	}), clientID)
	require.NoError(t, err)
}

func registerEchoAgent(t *testing.T, r *Registry, clientID string) {
	t.Helper()
	err := r.HandleMessage(context.Background(), bridgeMessage(v1.ControlAgentRegistration, map[string]interface{}{
		"agent_name": "echo",
		"agent_type": "sub_agent",
		"language":   "go",
		"capabilities": []interface{}{
			map[string]interface{}{"name": "echo", "category": "general", "priority": 5},
			map[string]interface{}{"name": "uppercase", "category": "general", "priority": 5},
		},
		"service_endpoint": "go://localhost:8080/echo",
		"status":           "ready",
	}), clientID)
	require.NoError(t, err)
}

func TestHandshakeRecordsBridge(t *testing.T) {
	events := bus.NewMemoryEventBus(newTestLogger(t))
	defer events.Close()

	var connected []*bus.Event
	sub, err := events.Subscribe(bus.SubjectBridgeConnected, func(_ context.Context, e *bus.Event) error {
		connected = append(connected, e)
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	r := NewRegistry(RegistryConfig{}, &fakeSender{}, events, newTestLogger(t))
	handshake(t, r, "client_1")

	bridges := r.Bridges()
	require.Len(t, bridges, 1)
	assert.Equal(t, "client_1", bridges[0].ClientID)
	assert.Equal(t, "worker-bridge", bridges[0].ServiceType)
	assert.Equal(t, "1.0.0", bridges[0].Version)
	assert.Equal(t, 8080, bridges[0].Port)
	assert.Contains(t, bridges[0].Capabilities, "task_execution")

	require.Len(t, connected, 1)
	assert.Equal(t, "client_1", connected[0].Data["client_id"])
}

func TestAgentRegistrationFlattensCapabilities(t *testing.T) {
	r := NewRegistry(RegistryConfig{}, &fakeSender{}, nil, newTestLogger(t))
	handshake(t, r, "client_1")
	registerEchoAgent(t, r, "client_1")

	require.Equal(t, 1, r.AgentCount())
	agents := r.RemoteAgents()
	require.Len(t, agents, 1)
	assert.Equal(t, "echo", agents[0]["name"])
	assert.Equal(t, []string{"echo", "uppercase"}, agents[0]["capabilities"])
	assert.Equal(t, "client_1", agents[0]["bridge_client_id"])
}

func TestHeartbeatRefreshesBridge(t *testing.T) {
	r := NewRegistry(RegistryConfig{}, &fakeSender{}, nil, newTestLogger(t))
	handshake(t, r, "client_1")

	before := r.Bridges()[0].LastHeartbeat
	time.Sleep(time.Millisecond)

	err := r.HandleMessage(context.Background(), bridgeMessage(v1.MessageHeartbeat, map[string]interface{}{
		"status": "healthy",
	}), "client_1")
	require.NoError(t, err)
	assert.True(t, r.Bridges()[0].LastHeartbeat.After(before))

	// A heartbeat from a never-seen client must not create a bridge.
	err = r.HandleMessage(context.Background(), bridgeMessage(v1.MessageHeartbeat, nil), "client_9")
	require.NoError(t, err)
	assert.Len(t, r.Bridges(), 1)
}

func TestExecuteRemoteTaskWaitsForTerminal(t *testing.T) {
	r := NewRegistry(RegistryConfig{}, nil, nil, newTestLogger(t))

	sender := &fakeSender{}
	sender.onSend = func(clientID string, msg *v1.Message) {
		req, err := v1.DecodeTaskRequest(msg.Payload)
		if err != nil {
			t.Errorf("bad request on the wire: %v", err)
			return
		}
		for _, status := range []v1.TaskStatus{v1.TaskStatusAccepted, v1.TaskStatusRunning, v1.TaskStatusCompleted} {
			payload, _ := v1.EncodePayload(&v1.TaskResponse{
				TaskID:        req.TaskID,
				Status:        status,
				AssignedAgent: "echo",
				Result:        map[string]interface{}{"output": "hi"},
			})
			_ = r.HandleMessage(context.Background(), bridgeMessage(v1.MessageTaskResponse, payload), clientID)
		}
	}
	r.sender = sender

	handshake(t, r, "client_1")
	registerEchoAgent(t, r, "client_1")

	resp, err := r.ExecuteRemoteTask(context.Background(), v1.NewTaskRequest("echo", "task-1", nil))
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusCompleted, resp.Status)
	assert.Equal(t, "echo", resp.AssignedAgent)
	assert.Equal(t, "hi", resp.Result["output"])

	require.Len(t, sender.sent, 1)
	assert.Equal(t, v1.MessageTaskRequest, sender.sent[0].MessageType)
	assert.Equal(t, "orchestrator", sender.sent[0].Sender)
}

func TestExecuteRemoteTaskNoCapableAgent(t *testing.T) {
	r := NewRegistry(RegistryConfig{}, &fakeSender{}, nil, newTestLogger(t))
	handshake(t, r, "client_1")
	registerEchoAgent(t, r, "client_1")

	_, err := r.ExecuteRemoteTask(context.Background(), v1.NewTaskRequest("translate", "task-2", nil))
	require.Error(t, err)
	assert.Equal(t, v1.ErrCodeAgentUnavailable, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "No capable agent found")
}

func TestExecuteRemoteTaskTimesOut(t *testing.T) {
	r := NewRegistry(RegistryConfig{}, &fakeSender{}, nil, newTestLogger(t))
	handshake(t, r, "client_1")
	registerEchoAgent(t, r, "client_1")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.ExecuteRemoteTask(ctx, v1.NewTaskRequest("echo", "task-3", nil))
	require.Error(t, err)
	assert.Equal(t, v1.ErrCodeTaskTimeout, apperrors.CodeOf(err))
}

func TestShutdownRemovesBridgeAndAgents(t *testing.T) {
	events := bus.NewMemoryEventBus(newTestLogger(t))
	defer events.Close()

	var subjects []string
	sub, err := events.Subscribe("bridge.>", func(_ context.Context, e *bus.Event) error {
		subjects = append(subjects, e.Type)
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	agentSub, err := events.Subscribe(bus.SubjectAgentDeregistered, func(_ context.Context, e *bus.Event) error {
		subjects = append(subjects, e.Type)
		return nil
	})
	require.NoError(t, err)
	defer agentSub.Unsubscribe()

	r := NewRegistry(RegistryConfig{}, &fakeSender{}, events, newTestLogger(t))
	handshake(t, r, "client_1")
	registerEchoAgent(t, r, "client_1")

	err = r.HandleMessage(context.Background(), bridgeMessage(v1.ControlShutdown, map[string]interface{}{
		"reason": "graceful_shutdown",
	}), "client_1")
	require.NoError(t, err)

	assert.Empty(t, r.Bridges())
	assert.Zero(t, r.AgentCount())
	assert.Contains(t, subjects, bus.SubjectBridgeConnected)
	assert.Contains(t, subjects, bus.SubjectAgentDeregistered)
	assert.Contains(t, subjects, bus.SubjectBridgeDisconnected)
}

func TestPruneStaleBridges(t *testing.T) {
	r := NewRegistry(RegistryConfig{}, &fakeSender{}, nil, newTestLogger(t))
	handshake(t, r, "client_1")
	handshake(t, r, "client_2")

	time.Sleep(20 * time.Millisecond)
	err := r.HandleMessage(context.Background(), bridgeMessage(v1.MessageHeartbeat, map[string]interface{}{
		"status": "healthy",
	}), "client_2")
	require.NoError(t, err)

	pruned := r.PruneStale(context.Background(), 10*time.Millisecond)
	assert.Equal(t, 1, pruned)

	bridges := r.Bridges()
	require.Len(t, bridges, 1)
	assert.Equal(t, "client_2", bridges[0].ClientID)
}

func TestPreferredRemoteAgentWins(t *testing.T) {
	r := NewRegistry(RegistryConfig{}, nil, nil, newTestLogger(t))

	sender := &fakeSender{}
	sender.onSend = func(clientID string, msg *v1.Message) {
		req, _ := v1.DecodeTaskRequest(msg.Payload)
		payload, _ := v1.EncodePayload(&v1.TaskResponse{
			TaskID:        req.TaskID,
			Status:        v1.TaskStatusCompleted,
			AssignedAgent: req.PreferredAgent,
		})
		_ = r.HandleMessage(context.Background(), bridgeMessage(v1.MessageTaskResponse, payload), clientID)
	}
	r.sender = sender

	handshake(t, r, "client_1")
	registerEchoAgent(t, r, "client_1")

	req := v1.NewTaskRequest("anything", "task-4", nil)
	req.PreferredAgent = "echo"
	resp, err := r.ExecuteRemoteTask(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "echo", resp.AssignedAgent)
}
