package v1

import "time"

// TaskStatus is the lifecycle state reported in task responses.
// ACCEPTED is a non-terminal acknowledgement emitted by the bridge exactly
// once before RUNNING.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusAccepted  TaskStatus = "ACCEPTED"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
	TaskStatusTimeout   TaskStatus = "TIMEOUT"
)

// IsTerminal reports whether the status ends a task's lifecycle.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusTimeout:
		return true
	}
	return false
}

// TaskMetrics records resource usage for a completed task.
type TaskMetrics struct {
	ProcessingTimeMs int64              `msgpack:"processing_time_ms" json:"processing_time_ms"`
	QueueTimeMs      int64              `msgpack:"queue_time_ms" json:"queue_time_ms"`
	RetryCount       int                `msgpack:"retry_count" json:"retry_count"`
	CostUSD          float64            `msgpack:"cost_usd" json:"cost_usd"`
	TokensUsed       int64              `msgpack:"tokens_used" json:"tokens_used"`
	ModelUsed        string             `msgpack:"model_used,omitempty" json:"model_used,omitempty"`
	CustomMetrics    map[string]float64 `msgpack:"custom_metrics" json:"custom_metrics"`
}

// TaskRequest asks a bridge to execute a typed task. TaskID must be unique
// within the receiving bridge.
type TaskRequest struct {
	TaskType       string                 `msgpack:"task_type" json:"task_type"`
	TaskID         string                 `msgpack:"task_id" json:"task_id"`
	Parameters     map[string]interface{} `msgpack:"parameters" json:"parameters"`
	Metadata       map[string]string      `msgpack:"metadata" json:"metadata"`
	PreferredAgent string                 `msgpack:"preferred_agent,omitempty" json:"preferred_agent,omitempty"`
	Priority       int                    `msgpack:"priority" json:"priority"`
	Deadline       *time.Time             `msgpack:"deadline,omitempty" json:"deadline,omitempty"`
}

// TaskResponse reports a task's status. At most one terminal response is
// sent per task id.
type TaskResponse struct {
	TaskID        string                 `msgpack:"task_id" json:"task_id"`
	Status        TaskStatus             `msgpack:"status" json:"status"`
	Result        map[string]interface{} `msgpack:"result,omitempty" json:"result,omitempty"`
	ErrorMessage  string                 `msgpack:"error_message,omitempty" json:"error_message,omitempty"`
	ErrorCode     string                 `msgpack:"error_code,omitempty" json:"error_code,omitempty"`
	AssignedAgent string                 `msgpack:"assigned_agent,omitempty" json:"assigned_agent,omitempty"`
	Metrics       TaskMetrics            `msgpack:"metrics" json:"metrics"`
	Warnings      []string               `msgpack:"warnings,omitempty" json:"warnings,omitempty"`
}

// NewTaskRequest builds a task request with default priority 5.
func NewTaskRequest(taskType, taskID string, parameters map[string]interface{}) *TaskRequest {
	if parameters == nil {
		parameters = map[string]interface{}{}
	}
	return &TaskRequest{
		TaskType:   taskType,
		TaskID:     taskID,
		Parameters: parameters,
		Metadata:   map[string]string{},
		Priority:   5,
	}
}
