// Package agent implements the in-process worker pool: named workers backed
// by a chat model, a keyword router that picks one worker per request, and
// performance tracking with exponential moving averages.
package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/common/logger"
	"github.com/cartrita/mcp/internal/provider/llm"
	"github.com/cartrita/mcp/internal/tool"
)

// WorkerType tags a worker's specialization. Types differ only in
// configuration, not in code paths.
type WorkerType string

const (
	WorkerTypeSupervisor  WorkerType = "supervisor"
	WorkerTypeResearch    WorkerType = "research"
	WorkerTypeWriter      WorkerType = "writer"
	WorkerTypeVision      WorkerType = "vision"
	WorkerTypeComputerUse WorkerType = "computer_use"
	WorkerTypeCodeWriter  WorkerType = "code_writer"
	WorkerTypeAnalyst     WorkerType = "analyst"
	WorkerTypeCustom      WorkerType = "custom"
)

// Config describes one worker.
type Config struct {
	Type               WorkerType `json:"type"`
	Model              string     `json:"model"`
	ComputerUseEnabled bool       `json:"computer_use_enabled"`
	MaxIterations      int        `json:"max_iterations"`
	ToolsAllowed       []string   `json:"tools_allowed"`
	SystemPrompt       string     `json:"system_prompt"`
	Capabilities       []string   `json:"capabilities"`
}

// RequestContext carries the caller's identity and conversation state into
// a task.
type RequestContext struct {
	UserID              string            `json:"user_id,omitempty"`
	SessionID           string            `json:"session_id,omitempty"`
	ConversationHistory []llm.ChatMessage `json:"conversation_history,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Task is one unit of work for a worker.
type Task struct {
	ID                 string         `json:"id"`
	Description        string         `json:"description"`
	Priority           int            `json:"priority"`
	Context            RequestContext `json:"context"`
	ToolsAllowed       []string       `json:"tools_allowed"`
	ComputerUseEnabled bool           `json:"computer_use_enabled"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Response is a worker's answer.
type Response struct {
	Success         bool                   `json:"success"`
	Content         string                 `json:"content"`
	AgentID         string                 `json:"agent_id"`
	TaskID          string                 `json:"task_id"`
	Error           string                 `json:"error,omitempty"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	ToolsUsed       []string               `json:"tools_used,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Worker is the task executor contract. Specializations differ only in
// their Config.
type Worker interface {
	ID() string
	Execute(ctx context.Context, task *Task) (*Response, error)
	Status() map[string]interface{}
	Shutdown(ctx context.Context) error
}

// LLMWorker runs tasks through a chat model with registry-mediated tool
// calls.
type LLMWorker struct {
	id     string
	cfg    Config
	client llm.Client
	tools  *tool.Registry
	logger *logger.Logger

	mu           sync.Mutex
	tasksHandled int64
	lastTaskAt   time.Time
	shutdown     bool
}

// NewLLMWorker builds a worker. The tool registry may be shared between
// workers; the worker holds only its handle.
func NewLLMWorker(id string, cfg Config, client llm.Client, tools *tool.Registry, log *logger.Logger) *LLMWorker {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	return &LLMWorker{
		id:     id,
		cfg:    cfg,
		client: client,
		tools:  tools,
		logger: log.WithFields(zap.String("worker", id)),
	}
}

// ID implements Worker.
func (w *LLMWorker) ID() string { return w.id }

// Config returns the worker's descriptor.
func (w *LLMWorker) Config() Config { return w.cfg }

// Execute implements Worker. The model is called in a loop: each round may
// request tool invocations, whose results are appended to the input until
// the model answers in plain text or the iteration cap is reached.
func (w *LLMWorker) Execute(ctx context.Context, task *Task) (*Response, error) {
	start := time.Now()

	input := make([]llm.ChatMessage, 0, len(task.Context.ConversationHistory)+2)
	if w.cfg.SystemPrompt != "" {
		input = append(input, llm.ChatMessage{Role: llm.RoleSystem, Content: w.cfg.SystemPrompt})
	}
	input = append(input, task.Context.ConversationHistory...)
	input = append(input, llm.ChatMessage{Role: llm.RoleUser, Content: task.Description})

	var toolsUsed []string
	var content string

	for iteration := 0; iteration < w.cfg.MaxIterations; iteration++ {
		resp, err := w.client.CreateResponses(ctx, llm.ResponsesRequest{
			Model: w.cfg.Model,
			Input: input,
			Tools: w.toolDefinitions(task),
		})
		if err != nil {
			return w.finish(task, start, "", toolsUsed, err)
		}
		if len(resp.Choices) == 0 {
			break
		}

		choice := resp.Choices[0]
		content = choice.Content
		if len(choice.ToolCalls) == 0 {
			break
		}

		if content != "" {
			input = append(input, llm.ChatMessage{Role: llm.RoleAssistant, Content: content})
		}
		for _, call := range choice.ToolCalls {
			result := w.tools.Execute(ctx, call.Name, call.Arguments, w.id)
			toolsUsed = append(toolsUsed, call.Name)

			encoded, err := json.Marshal(result)
			if err != nil {
				encoded = []byte(`{"success": false, "error": "unserializable tool result"}`)
			}
			input = append(input, llm.ChatMessage{Role: llm.RoleTool, Content: string(encoded)})
		}
	}

	return w.finish(task, start, content, toolsUsed, nil)
}

func (w *LLMWorker) toolDefinitions(task *Task) []llm.ToolDefinition {
	visible := w.tools.ToolsForAgent(w.id, intersect(w.cfg.ToolsAllowed, task.ToolsAllowed))
	defs := make([]llm.ToolDefinition, 0, len(visible))
	for name, t := range visible {
		defs = append(defs, llm.ToolDefinition{
			Name:        name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// intersect keeps the worker's allowed tools that the task also permits. An
// empty task list means no extra restriction.
func intersect(workerTools, taskTools []string) []string {
	if len(taskTools) == 0 {
		return workerTools
	}
	taskSet := make(map[string]struct{}, len(taskTools))
	for _, name := range taskTools {
		taskSet[name] = struct{}{}
	}
	out := make([]string, 0, len(workerTools))
	for _, name := range workerTools {
		if _, ok := taskSet[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (w *LLMWorker) finish(task *Task, start time.Time, content string, toolsUsed []string, execErr error) (*Response, error) {
	w.mu.Lock()
	w.tasksHandled++
	w.lastTaskAt = time.Now().UTC()
	w.mu.Unlock()

	resp := &Response{
		Success:         execErr == nil,
		Content:         content,
		AgentID:         w.id,
		TaskID:          task.ID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		ToolsUsed:       toolsUsed,
	}
	if execErr != nil {
		resp.Error = execErr.Error()
		w.logger.Error("task execution failed", zap.String("task_id", task.ID), zap.Error(execErr))
	}
	return resp, nil
}

// Status implements Worker.
func (w *LLMWorker) Status() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := map[string]interface{}{
		"agent_id":      w.id,
		"status":        "ready",
		"tasks_handled": w.tasksHandled,
	}
	if w.shutdown {
		status["status"] = "shutdown"
	}
	if !w.lastTaskAt.IsZero() {
		status["last_task_at"] = w.lastTaskAt.Format(time.RFC3339Nano)
	}
	return status
}

// Shutdown implements Worker.
func (w *LLMWorker) Shutdown(context.Context) error {
	w.mu.Lock()
	w.shutdown = true
	w.mu.Unlock()
	w.logger.Info("worker shut down")
	return nil
}

// NewTask assembles a task record with a fresh UUID.
func NewTask(description string, reqCtx RequestContext, priority int, toolsAllowed []string, computerUse bool) *Task {
	return &Task{
		ID:                 uuid.New().String(),
		Description:        description,
		Priority:           priority,
		Context:            reqCtx,
		ToolsAllowed:       toolsAllowed,
		ComputerUseEnabled: computerUse,
		CreatedAt:          time.Now().UTC(),
	}
}
