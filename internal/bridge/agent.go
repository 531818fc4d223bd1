// Package bridge implements the worker-side endpoint of the transport: it
// connects to the orchestrator socket, registers capability-tagged agents,
// dispatches task requests to them concurrently, and reports status through
// heartbeats and correlated task responses.
package bridge

import (
	"context"

	v1 "github.com/cartrita/mcp/pkg/mcp/v1"
)

// Capability describes one task family an agent claims.
type Capability struct {
	Name     string `msgpack:"name" json:"name"`
	Category string `msgpack:"category" json:"category"`
	Priority int    `msgpack:"priority" json:"priority"`
}

// Agent executes tasks on behalf of the bridge. Implementations must respect
// context cancellation at their next suspension point.
type Agent interface {
	// Name returns the agent's unique name within the bridge.
	Name() string

	// Capabilities returns the capability tags this agent claims.
	Capabilities() []Capability

	// Execute runs one task to completion or error.
	Execute(ctx context.Context, req *v1.TaskRequest) (*v1.TaskResponse, error)
}

// requiredCapabilities extracts the capability names a request demands.
// Requests without an explicit list are matched on their task type.
func requiredCapabilities(req *v1.TaskRequest) []string {
	if raw, ok := req.Parameters["required_capabilities"]; ok {
		switch list := raw.(type) {
		case []string:
			return list
		case []interface{}:
			out := make([]string, 0, len(list))
			for _, item := range list {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return []string{req.TaskType}
}

// canHandle reports whether any required capability is in the agent's set.
func canHandle(agent Agent, req *v1.TaskRequest) bool {
	required := requiredCapabilities(req)
	for _, c := range agent.Capabilities() {
		for _, want := range required {
			if c.Name == want {
				return true
			}
		}
	}
	return false
}

// AgentFunc adapts a function into an Agent with fixed capabilities.
type AgentFunc struct {
	AgentName string
	Caps      []Capability
	Fn        func(ctx context.Context, req *v1.TaskRequest) (*v1.TaskResponse, error)
}

// Name implements Agent.
func (a *AgentFunc) Name() string { return a.AgentName }

// Capabilities implements Agent.
func (a *AgentFunc) Capabilities() []Capability { return a.Caps }

// Execute implements Agent.
func (a *AgentFunc) Execute(ctx context.Context, req *v1.TaskRequest) (*v1.TaskResponse, error) {
	return a.Fn(ctx, req)
}
