package v1

import "time"

// AgentType classifies an agent's role in the hierarchy.
type AgentType string

const (
	AgentTypeOrchestrator AgentType = "ORCHESTRATOR"
	AgentTypeSupervisor   AgentType = "SUPERVISOR"
	AgentTypeSubAgent     AgentType = "SUB_AGENT"
)

// HealthStatus is the liveness snapshot carried in registrations and
// heartbeat replies.
type HealthStatus struct {
	Healthy       bool      `msgpack:"healthy" json:"healthy"`
	StatusMessage string    `msgpack:"status_message" json:"status_message"`
	CPUUsage      float64   `msgpack:"cpu_usage" json:"cpu_usage"`
	MemoryMB      int64     `msgpack:"memory_mb" json:"memory_mb"`
	ActiveTasks   int       `msgpack:"active_tasks" json:"active_tasks"`
	LastHeartbeat time.Time `msgpack:"last_heartbeat" json:"last_heartbeat"`
}

// AgentRegistration announces an agent to the orchestrator.
type AgentRegistration struct {
	AgentID      string            `msgpack:"agent_id" json:"agent_id"`
	AgentName    string            `msgpack:"agent_name" json:"agent_name"`
	Type         AgentType         `msgpack:"type" json:"type"`
	Version      string            `msgpack:"version" json:"version"`
	Capabilities []string          `msgpack:"capabilities" json:"capabilities"`
	Metadata     map[string]string `msgpack:"metadata" json:"metadata"`
	Health       HealthStatus      `msgpack:"health" json:"health"`
	RegisteredAt time.Time         `msgpack:"registered_at" json:"registered_at"`
}
