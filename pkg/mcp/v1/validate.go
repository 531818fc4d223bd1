package v1

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError reports a schema violation with its wire error code.
type ValidationError struct {
	Code   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Code: ErrCodeInvalidMessageFormat, Field: field, Reason: reason}
}

// ValidateMessage checks the message envelope against the schema: well-formed
// UUID id, known message type, required identifiers, in-range delivery
// options, and a supported delivery guarantee.
func ValidateMessage(m *Message) error {
	if m == nil {
		return invalid("message", "nil message")
	}
	if _, err := uuid.Parse(m.ID); err != nil {
		return invalid("id", "not a valid UUID")
	}
	if m.Sender == "" {
		return invalid("sender", "required")
	}
	if m.Recipient == "" {
		return invalid("recipient", "required")
	}
	if !IsKnownMessageType(m.MessageType) {
		return invalid("message_type", fmt.Sprintf("unknown type %q", m.MessageType))
	}
	if m.CreatedAt.IsZero() {
		return invalid("created_at", "required")
	}
	if err := validateContext(&m.Context); err != nil {
		return err
	}
	return validateDelivery(&m.Delivery)
}

func validateContext(c *Context) error {
	if c.TraceID == "" {
		return invalid("context.trace_id", "required")
	}
	if c.SpanID == "" {
		return invalid("context.span_id", "required")
	}
	if c.RequestID == "" {
		return invalid("context.request_id", "required")
	}
	if c.TimeoutMs < 0 {
		return invalid("context.timeout_ms", "must be >= 0")
	}
	if c.Budget != nil {
		if c.Budget.MaxUSD < 0 || c.Budget.UsedUSD < 0 || c.Budget.MaxTokens < 0 || c.Budget.UsedTokens < 0 {
			return invalid("context.budget", "values must be >= 0")
		}
	}
	return nil
}

func validateDelivery(d *DeliveryOptions) error {
	switch d.Guarantee {
	case DeliveryAtMostOnce, DeliveryAtLeastOnce:
	case DeliveryExactlyOnce:
		return &ValidationError{
			Code:   ErrCodeConfigurationError,
			Field:  "delivery.guarantee",
			Reason: "EXACTLY_ONCE is not supported",
		}
	default:
		return invalid("delivery.guarantee", fmt.Sprintf("unknown guarantee %q", d.Guarantee))
	}
	if d.RetryCount < 0 || d.RetryCount > 10 {
		return invalid("delivery.retry_count", "must be in [0,10]")
	}
	if d.RetryDelayMs < 0 {
		return invalid("delivery.retry_delay_ms", "must be >= 0")
	}
	if d.Priority < 0 || d.Priority > 10 {
		return invalid("delivery.priority", "must be in [0,10]")
	}
	return nil
}

// ValidateTaskRequest checks a task request record.
func ValidateTaskRequest(r *TaskRequest) error {
	if r == nil {
		return invalid("task_request", "nil request")
	}
	if r.TaskType == "" {
		return invalid("task_type", "required")
	}
	if r.TaskID == "" {
		return invalid("task_id", "required")
	}
	if r.Priority < 0 || r.Priority > 10 {
		return invalid("priority", "must be in [0,10]")
	}
	return nil
}

// ValidateTaskResponse checks a task response record.
func ValidateTaskResponse(r *TaskResponse) error {
	if r == nil {
		return invalid("task_response", "nil response")
	}
	if r.TaskID == "" {
		return invalid("task_id", "required")
	}
	switch r.Status {
	case TaskStatusPending, TaskStatusAccepted, TaskStatusRunning,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusTimeout:
	default:
		return invalid("status", fmt.Sprintf("unknown status %q", r.Status))
	}
	if r.Metrics.ProcessingTimeMs < 0 || r.Metrics.QueueTimeMs < 0 {
		return invalid("metrics", "timings must be >= 0")
	}
	return nil
}
