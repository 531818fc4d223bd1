// Package tool implements the name-keyed registry of callable capabilities
// with a four-level permission lattice, per-agent grant lists, and an
// append-only execution log.
package tool

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/common/logger"
)

// PermissionLevel orders tool access: public < restricted < supervised <
// admin. Public tools are available to every agent; the rest require an
// explicit grant. Admin tools are never granted at runtime.
type PermissionLevel string

const (
	PermissionPublic     PermissionLevel = "public"
	PermissionRestricted PermissionLevel = "restricted"
	PermissionSupervised PermissionLevel = "supervised"
	PermissionAdmin      PermissionLevel = "admin"
)

// Func is a tool implementation. Failures are returned as errors; the
// registry translates them into the result map it hands back to agents.
type Func func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Tool is one registered capability.
type Tool struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Permission   PermissionLevel        `json:"permission_level"`
	Parameters   map[string]interface{} `json:"parameters"`
	RegisteredAt time.Time              `json:"registered_at"`

	fn Func
}

// LogEntry is one append-only execution record.
type LogEntry struct {
	ToolName      string    `json:"tool_name"`
	AgentID       string    `json:"agent_id"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	ExecutionTime float64   `json:"execution_time"`
	Timestamp     time.Time `json:"timestamp"`
}

// Registry owns the tool map, per-agent grants, usage counters, and the
// execution log. All methods are safe for concurrent use.
type Registry struct {
	logger *logger.Logger

	mu     sync.RWMutex
	tools  map[string]*Tool
	grants map[string]map[string]struct{}
	usage  map[string]int64
	log    []LogEntry
}

// NewRegistry builds an empty registry. Call RegisterBuiltins to install the
// core tool set.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		logger: log.WithFields(zap.String("component", "tool_registry")),
		tools:  make(map[string]*Tool),
		grants: make(map[string]map[string]struct{}),
		usage:  make(map[string]int64),
	}
}

// Register inserts a tool. A duplicate name overwrites the previous entry.
func (r *Registry) Register(name string, fn Func, permission PermissionLevel, description string, parameters map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		r.logger.Warn("overwriting existing tool", zap.String("tool", name))
	}
	r.tools[name] = &Tool{
		Name:         name,
		Description:  description,
		Permission:   permission,
		Parameters:   parameters,
		RegisteredAt: time.Now().UTC(),
		fn:           fn,
	}
	if _, ok := r.usage[name]; !ok {
		r.usage[name] = 0
	}
	r.logger.Info("registered tool", zap.String("tool", name), zap.String("permission", string(permission)))
}

// Grant adds tools to an agent's grant set. Unknown tool names log a warning
// and are skipped; granting twice is the same as granting once.
func (r *Registry) Grant(agentID string, toolNames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.grants[agentID]
	if !ok {
		set = make(map[string]struct{})
		r.grants[agentID] = set
	}
	for _, name := range toolNames {
		if _, exists := r.tools[name]; !exists {
			r.logger.Warn("cannot grant unknown tool", zap.String("tool", name), zap.String("agent", agentID))
			continue
		}
		set[name] = struct{}{}
	}
}

// Revoke removes tools from an agent's grant set. Revoking a never-granted
// tool is a no-op.
func (r *Registry) Revoke(agentID string, toolNames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.grants[agentID]
	if !ok {
		return
	}
	for _, name := range toolNames {
		delete(set, name)
	}
}

// ToolsForAgent returns the tools visible to an agent: all public tools,
// everything explicitly granted, and any requested names that exist.
func (r *Registry) ToolsForAgent(agentID string, requested []string) map[string]*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestedSet := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		requestedSet[name] = struct{}{}
	}
	granted := r.grants[agentID]

	out := make(map[string]*Tool)
	for name, t := range r.tools {
		_, isGranted := granted[name]
		_, isRequested := requestedSet[name]
		if t.Permission == PermissionPublic || isGranted || isRequested {
			out[name] = t
		}
	}
	return out
}

// HasPermission reports whether the agent may execute the tool right now.
func (r *Registry) HasPermission(agentID, toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasPermissionLocked(agentID, toolName)
}

func (r *Registry) hasPermissionLocked(agentID, toolName string) bool {
	t, ok := r.tools[toolName]
	if !ok {
		return false
	}
	if t.Permission == PermissionPublic {
		return true
	}
	_, granted := r.grants[agentID][toolName]
	return granted
}

// Execute runs a tool on behalf of an agent and returns a result map with a
// "success" flag rather than a Go error, so agents can feed it straight back
// to a model. Params may be a decoded map or a JSON string; a string that
// fails to decode is wrapped as {"input": raw}.
func (r *Registry) Execute(ctx context.Context, toolName string, params interface{}, agentID string) map[string]interface{} {
	r.mu.RLock()
	t, exists := r.tools[toolName]
	allowed := exists && r.hasPermissionLocked(agentID, toolName)
	r.mu.RUnlock()

	if !exists {
		return map[string]interface{}{
			"success": false,
			"error":   "Tool " + toolName + " not found",
		}
	}
	if !allowed {
		return map[string]interface{}{
			"success": false,
			"error":   "Agent " + agentID + " lacks permission for tool " + toolName,
		}
	}

	decoded := decodeParams(params)

	start := time.Now()
	result, err := t.fn(ctx, decoded)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		r.logger.Error("tool execution failed",
			zap.String("tool", toolName),
			zap.String("agent", agentID),
			zap.Error(err))
		r.record(LogEntry{
			ToolName:  toolName,
			AgentID:   agentID,
			Success:   false,
			Error:     err.Error(),
			Timestamp: start.UTC(),
		})
		return map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		}
	}

	r.mu.Lock()
	r.usage[toolName]++
	r.mu.Unlock()
	r.record(LogEntry{
		ToolName:      toolName,
		AgentID:       agentID,
		Success:       true,
		ExecutionTime: elapsed,
		Timestamp:     start.UTC(),
	})

	out, ok := result.(map[string]interface{})
	if !ok {
		out = map[string]interface{}{"output": stringify(result)}
	}
	out["success"] = true
	out["execution_time"] = elapsed
	return out
}

func (r *Registry) record(entry LogEntry) {
	r.mu.Lock()
	r.log = append(r.log, entry)
	r.mu.Unlock()
}

func decodeParams(params interface{}) map[string]interface{} {
	switch p := params.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		return p
	case string:
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(p), &decoded); err != nil {
			return map[string]interface{}{"input": p}
		}
		return decoded
	default:
		return map[string]interface{}{"input": stringify(p)}
	}
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Stats summarizes the registry for status endpoints.
func (r *Registry) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	levels := map[string]int{}
	for _, t := range r.tools {
		levels[string(t.Permission)]++
	}
	usage := make(map[string]int64, len(r.usage))
	for name, n := range r.usage {
		usage[name] = n
	}
	recent := r.log
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	recentCopy := make([]LogEntry, len(recent))
	copy(recentCopy, recent)

	return map[string]interface{}{
		"total_tools":             len(r.tools),
		"permission_levels":       levels,
		"tool_usage":              usage,
		"agents_with_permissions": len(r.grants),
		"recent_executions":       recentCopy,
		"timestamp":               time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// ExecutionLog returns a copy of the append-only log.
func (r *Registry) ExecutionLog() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LogEntry, len(r.log))
	copy(out, r.log)
	return out
}
