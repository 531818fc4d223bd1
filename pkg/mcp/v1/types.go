package v1

// Message types validated as typed payloads.
const (
	// Task messages
	MessageTaskRequest  = "TASK_REQUEST"
	MessageTaskResponse = "TASK_RESPONSE"
	MessageTaskProgress = "TASK_PROGRESS"
	MessageTaskCancel   = "TASK_CANCEL"

	// Stream messages
	MessageStreamStart = "STREAM_START"
	MessageStreamData  = "STREAM_DATA"
	MessageStreamEnd   = "STREAM_END"

	// System messages
	MessageHeartbeat       = "HEARTBEAT"
	MessageHealthCheck     = "HEALTH_CHECK"
	MessageAgentRegister   = "AGENT_REGISTER"
	MessageAgentDeregister = "AGENT_DEREGISTER"

	// Control messages
	MessageSystemCommand = "SYSTEM_COMMAND"
	MessageConfigUpdate  = "CONFIG_UPDATE"
	MessageEmergencyStop = "EMERGENCY_STOP"
)

// Control types exchanged on top of the typed set. Their payloads are not
// validated as typed records but are expected by the bridge.
const (
	ControlHandshake          = "handshake"
	ControlHeartbeatResponse  = "heartbeat_response"
	ControlAgentQuery         = "agent_query"
	ControlAgentQueryResponse = "agent_query_response"
	ControlStatusRequest      = "status_request"
	ControlStatusResponse     = "status_response"
	ControlShutdown           = "shutdown"
	ControlAgentRegistration  = "agent_registration"
)

var knownMessageTypes = map[string]struct{}{
	MessageTaskRequest:        {},
	MessageTaskResponse:       {},
	MessageTaskProgress:       {},
	MessageTaskCancel:         {},
	MessageStreamStart:        {},
	MessageStreamData:         {},
	MessageStreamEnd:          {},
	MessageHeartbeat:          {},
	MessageHealthCheck:        {},
	MessageAgentRegister:      {},
	MessageAgentDeregister:    {},
	MessageSystemCommand:      {},
	MessageConfigUpdate:       {},
	MessageEmergencyStop:      {},
	ControlHandshake:          {},
	ControlHeartbeatResponse:  {},
	ControlAgentQuery:         {},
	ControlAgentQueryResponse: {},
	ControlStatusRequest:      {},
	ControlStatusResponse:     {},
	ControlShutdown:           {},
	ControlAgentRegistration:  {},
}

// IsKnownMessageType reports whether t is a typed or control message type.
func IsKnownMessageType(t string) bool {
	_, ok := knownMessageTypes[t]
	return ok
}
