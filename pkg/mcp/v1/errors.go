package v1

// Wire error codes. The set is closed; responses carry exactly one of these
// in TaskResponse.ErrorCode.
const (
	// Validation errors
	ErrCodeInvalidMessageFormat = "INVALID_MESSAGE_FORMAT"
	ErrCodeInvalidTaskType      = "INVALID_TASK_TYPE"
	ErrCodeInvalidParameters    = "INVALID_PARAMETERS"

	// Resource errors
	ErrCodeInsufficientBudget    = "INSUFFICIENT_BUDGET"
	ErrCodeResourceLimitExceeded = "RESOURCE_LIMIT_EXCEEDED"
	ErrCodeAgentUnavailable      = "AGENT_UNAVAILABLE"
	ErrCodeQueueFull             = "QUEUE_FULL"

	// Execution errors
	ErrCodeTaskTimeout   = "TASK_TIMEOUT"
	ErrCodeTaskCancelled = "TASK_CANCELLED"
	ErrCodeAgentError    = "AGENT_ERROR"
	ErrCodeNetworkError  = "NETWORK_ERROR"

	// Security errors
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeAuthorizationFailed  = "AUTHORIZATION_FAILED"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"

	// System errors
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeConfigurationError = "CONFIGURATION_ERROR"
)
