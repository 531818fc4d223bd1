package v1

// StreamStatus is the terminal state of a stream.
type StreamStatus string

const (
	StreamCompleted StreamStatus = "COMPLETED"
	StreamCancelled StreamStatus = "CANCELLED"
	StreamFailed    StreamStatus = "FAILED"
)

// CommandType enumerates SYSTEM_COMMAND payloads.
type CommandType string

const (
	CommandShutdown     CommandType = "SHUTDOWN"
	CommandRestart      CommandType = "RESTART"
	CommandScaleUp      CommandType = "SCALE_UP"
	CommandScaleDown    CommandType = "SCALE_DOWN"
	CommandHealthCheck  CommandType = "HEALTH_CHECK"
	CommandConfigUpdate CommandType = "CONFIG_UPDATE"
)

// StreamStart opens a chunked transfer.
type StreamStart struct {
	StreamID      string            `msgpack:"stream_id" json:"stream_id"`
	ContentType   string            `msgpack:"content_type" json:"content_type"`
	Metadata      map[string]string `msgpack:"metadata" json:"metadata"`
	EstimatedSize int64             `msgpack:"estimated_size" json:"estimated_size"`
}

// StreamData carries one chunk of an open stream.
type StreamData struct {
	StreamID string `msgpack:"stream_id" json:"stream_id"`
	Sequence int64  `msgpack:"sequence" json:"sequence"`
	Data     []byte `msgpack:"data" json:"data"`
	IsFinal  bool   `msgpack:"is_final" json:"is_final"`
}

// StreamEnd closes a stream and reports its outcome.
type StreamEnd struct {
	StreamID     string       `msgpack:"stream_id" json:"stream_id"`
	Status       StreamStatus `msgpack:"status" json:"status"`
	ErrorMessage string       `msgpack:"error_message,omitempty" json:"error_message,omitempty"`
	TotalBytes   int64        `msgpack:"total_bytes" json:"total_bytes"`
}
