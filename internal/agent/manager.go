package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/cartrita/mcp/internal/common/errors"
	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/events/bus"
	"github.com/cartrita/mcp/internal/provider/llm"
	"github.com/cartrita/mcp/internal/tool"
)

// emaAlpha is the smoothing factor for the success-rate and latency moving
// averages.
const emaAlpha = 0.1

// defaultTaskTools is the tool list attached to every delegated task.
var defaultTaskTools = []string{
	"web_search", "file_read", "file_write", "screenshot",
	"system_info", "execute_code",
}

// Performance is a worker's running metrics. SuccessRate stays in [0,1].
type Performance struct {
	TasksCompleted      int64     `json:"tasks_completed"`
	SuccessRate         float64   `json:"success_rate"`
	AverageResponseTime float64   `json:"average_response_time"`
	LastActive          time.Time `json:"last_active"`
}

// DelegationRecord is one entry in the delegation history.
type DelegationRecord struct {
	TaskID        string    `json:"task_id"`
	Description   string    `json:"description"`
	AssignedAgent string    `json:"assigned_agent"`
	Success       bool      `json:"success"`
	ExecutionTime int64     `json:"execution_time"`
	Timestamp     time.Time `json:"timestamp"`
}

// ManagerConfig tunes the manager.
type ManagerConfig struct {
	MaxConcurrentTasks int
	DefaultModel       string
}

// Manager owns the worker pool, routes requests, and tracks performance.
type Manager struct {
	cfg    ManagerConfig
	client llm.Client
	tools  *tool.Registry
	events bus.EventBus
	router *Router
	logger *logger.Logger

	mu          sync.RWMutex
	workers     map[string]Worker
	configs     map[string]Config
	performance map[string]*Performance
	activeTasks map[string]*Task
	results     map[string]*Response
	history     []DelegationRecord
}

// NewManager builds an empty manager. events may be nil to skip bus
// publishing.
func NewManager(cfg ManagerConfig, client llm.Client, tools *tool.Registry, events bus.EventBus, log *logger.Logger) *Manager {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 10
	}
	return &Manager{
		cfg:         cfg,
		client:      client,
		tools:       tools,
		events:      events,
		router:      NewRouter(WorkerSupervisor),
		logger:      log.WithFields(zap.String("component", "agent_manager")),
		workers:     make(map[string]Worker),
		configs:     make(map[string]Config),
		performance: make(map[string]*Performance),
		activeTasks: make(map[string]*Task),
		results:     make(map[string]*Response),
	}
}

// CreateWorker builds an LLM-backed worker from a config and registers it.
func (m *Manager) CreateWorker(id string, cfg Config) (Worker, error) {
	worker := NewLLMWorker(id, cfg, m.client, m.tools, m.logger)
	if err := m.RegisterWorker(worker, cfg); err != nil {
		return nil, err
	}
	return worker, nil
}

// RegisterWorker records a worker and grants its tool list. A duplicate id
// is an error.
func (m *Manager) RegisterWorker(worker Worker, cfg Config) error {
	m.mu.Lock()
	if _, exists := m.workers[worker.ID()]; exists {
		m.mu.Unlock()
		return fmt.Errorf("worker %s already exists", worker.ID())
	}
	m.workers[worker.ID()] = worker
	m.configs[worker.ID()] = cfg
	m.performance[worker.ID()] = &Performance{
		SuccessRate: 1.0,
		LastActive:  time.Now().UTC(),
	}
	m.mu.Unlock()

	// Grants are made here, during pool construction; supervised tools are
	// never granted later at runtime.
	if m.tools != nil && len(cfg.ToolsAllowed) > 0 {
		m.tools.Grant(worker.ID(), cfg.ToolsAllowed)
	}

	m.logger.Info("registered worker",
		zap.String("worker", worker.ID()),
		zap.String("type", string(cfg.Type)))
	return nil
}

// ExecuteTask routes a request to one worker and runs it. The chosen worker
// is the preferred one when present, otherwise the router's pick.
func (m *Manager) ExecuteTask(ctx context.Context, description string, reqCtx RequestContext, priority int, preferred string) (*Response, error) {
	m.mu.Lock()
	if len(m.activeTasks) >= m.cfg.MaxConcurrentTasks {
		m.mu.Unlock()
		return nil, apperrors.QueueFull("manager at maximum concurrent tasks")
	}

	task := NewTask(description, reqCtx, priority, defaultTaskTools, RequiresComputerUse(description))
	m.activeTasks[task.ID] = task

	assignedID := preferred
	if _, ok := m.workers[assignedID]; assignedID == "" || !ok {
		assignedID = m.router.Route(description)
	}
	worker, ok := m.workers[assignedID]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.activeTasks, task.ID)
		m.mu.Unlock()
	}()

	if !ok {
		return m.failTask(task, fmt.Sprintf("no worker %s in pool", assignedID)), nil
	}

	m.logger.Info("routing task",
		zap.String("task_id", task.ID),
		zap.String("worker", assignedID))
	m.publish(ctx, bus.SubjectTaskDelegated, map[string]interface{}{
		"task_id":        task.ID,
		"assigned_agent": assignedID,
		"description":    truncate(description, 100),
	})

	response, err := worker.Execute(ctx, task)
	if err != nil {
		m.logger.Error("task execution failed", zap.String("task_id", task.ID), zap.Error(err))
		resp := m.failTask(task, err.Error())
		m.publish(ctx, bus.SubjectTaskFailed, map[string]interface{}{
			"task_id": task.ID,
			"error":   err.Error(),
		})
		return resp, nil
	}

	m.mu.Lock()
	m.results[task.ID] = response
	m.updatePerformanceLocked(assignedID, response)
	m.history = append(m.history, DelegationRecord{
		TaskID:        task.ID,
		Description:   truncate(description, 100),
		AssignedAgent: assignedID,
		Success:       response.Success,
		ExecutionTime: response.ExecutionTimeMs,
		Timestamp:     time.Now().UTC(),
	})
	m.mu.Unlock()

	subject := bus.SubjectTaskCompleted
	if !response.Success {
		subject = bus.SubjectTaskFailed
	}
	m.publish(ctx, subject, map[string]interface{}{
		"task_id":           task.ID,
		"assigned_agent":    assignedID,
		"success":           response.Success,
		"execution_time_ms": response.ExecutionTimeMs,
	})

	return response, nil
}

// DelegateToWorker runs a task on a named worker, bypassing the router.
func (m *Manager) DelegateToWorker(ctx context.Context, workerID, description string, reqCtx RequestContext, priority int) (*Response, error) {
	m.mu.RLock()
	_, exists := m.workers[workerID]
	m.mu.RUnlock()
	if !exists {
		return &Response{
			Success: false,
			Content: "Agent not found",
			AgentID: "manager",
			Error:   fmt.Sprintf("worker %s does not exist", workerID),
		}, nil
	}
	return m.ExecuteTask(ctx, description, reqCtx, priority, workerID)
}

func (m *Manager) failTask(task *Task, reason string) *Response {
	resp := &Response{
		Success: false,
		Content: "Task execution failed",
		AgentID: "manager",
		TaskID:  task.ID,
		Error:   reason,
	}
	m.mu.Lock()
	m.results[task.ID] = resp
	m.mu.Unlock()
	return resp
}

// updatePerformanceLocked applies the EMA update. Callers hold m.mu.
func (m *Manager) updatePerformanceLocked(workerID string, response *Response) {
	perf, ok := m.performance[workerID]
	if !ok {
		return
	}
	perf.TasksCompleted++
	perf.LastActive = time.Now().UTC()

	outcome := 0.0
	if response.Success {
		outcome = 1.0
	}
	perf.SuccessRate = emaAlpha*outcome + (1-emaAlpha)*perf.SuccessRate

	if response.ExecutionTimeMs > 0 {
		perf.AverageResponseTime = emaAlpha*float64(response.ExecutionTimeMs) + (1-emaAlpha)*perf.AverageResponseTime
	}
}

// Status returns one worker's status merged with its config and
// performance, or the aggregate across the pool when workerID is empty.
func (m *Manager) Status(workerID string) (map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if workerID != "" {
		worker, ok := m.workers[workerID]
		if !ok {
			return nil, apperrors.AgentUnavailable(fmt.Sprintf("worker %s not found", workerID))
		}
		return m.workerStatusLocked(workerID, worker), nil
	}

	all := make(map[string]interface{}, len(m.workers))
	for id, worker := range m.workers {
		all[id] = m.workerStatusLocked(id, worker)
	}

	recent := m.history
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	recentCopy := make([]DelegationRecord, len(recent))
	copy(recentCopy, recent)

	return map[string]interface{}{
		"agents": all,
		"manager_stats": map[string]interface{}{
			"total_agents":       len(m.workers),
			"active_tasks":       len(m.activeTasks),
			"total_delegations":  len(m.history),
			"recent_delegations": recentCopy,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func (m *Manager) workerStatusLocked(id string, worker Worker) map[string]interface{} {
	status := worker.Status()
	cfg := m.configs[id]
	status["config"] = map[string]interface{}{
		"type":         string(cfg.Type),
		"model":        cfg.Model,
		"capabilities": cfg.Capabilities,
	}
	if perf, ok := m.performance[id]; ok {
		snapshot := *perf
		status["performance"] = snapshot
	}
	return status
}

// PerformanceFor returns a snapshot of one worker's metrics.
func (m *Manager) PerformanceFor(workerID string) (Performance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	perf, ok := m.performance[workerID]
	if !ok {
		return Performance{}, false
	}
	return *perf, true
}

// History returns a copy of the delegation history.
func (m *Manager) History() []DelegationRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DelegationRecord, len(m.history))
	copy(out, m.history)
	return out
}

// Result returns the stored response for a task.
func (m *Manager) Result(taskID string) (*Response, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp, ok := m.results[taskID]
	return resp, ok
}

// WorkerIDs lists the pool.
func (m *Manager) WorkerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	return ids
}

// ShutdownWorker stops and removes one worker.
func (m *Manager) ShutdownWorker(ctx context.Context, workerID string) bool {
	m.mu.Lock()
	worker, ok := m.workers[workerID]
	if ok {
		delete(m.workers, workerID)
		delete(m.configs, workerID)
		delete(m.performance, workerID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	if err := worker.Shutdown(ctx); err != nil {
		m.logger.Warn("worker shutdown error", zap.String("worker", workerID), zap.Error(err))
	}
	m.logger.Info("shut down worker", zap.String("worker", workerID))
	return true
}

// Shutdown stops every worker concurrently, absorbing individual errors,
// then clears the pool.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	workers := make([]Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		worker := w
		g.Go(func() error {
			if err := worker.Shutdown(gctx); err != nil {
				m.logger.Warn("worker shutdown error",
					zap.String("worker", worker.ID()),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	m.workers = make(map[string]Worker)
	m.configs = make(map[string]Config)
	m.performance = make(map[string]*Performance)
	m.activeTasks = make(map[string]*Task)
	m.mu.Unlock()

	m.logger.Info("all workers shutdown complete")
	return nil
}

func (m *Manager) publish(ctx context.Context, subject string, data map[string]interface{}) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, subject, bus.NewEvent(subject, "agent-manager", data)); err != nil {
		m.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
