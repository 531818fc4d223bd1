package v1

import (
	"github.com/vmihailenco/msgpack/v5"
)

// EncodePayload converts a typed payload record into the generic map carried
// by Message.Payload, using the record's msgpack field names.
func EncodePayload(v interface{}) (map[string]interface{}, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodePayload converts a generic payload map back into a typed record.
func DecodePayload(payload map[string]interface{}, out interface{}) error {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(raw, out)
}

// DecodeTaskRequest extracts and validates a task request payload.
func DecodeTaskRequest(payload map[string]interface{}) (*TaskRequest, error) {
	var req TaskRequest
	if err := DecodePayload(payload, &req); err != nil {
		return nil, invalid("payload", err.Error())
	}
	if err := ValidateTaskRequest(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeTaskResponse extracts and validates a task response payload.
func DecodeTaskResponse(payload map[string]interface{}) (*TaskResponse, error) {
	var resp TaskResponse
	if err := DecodePayload(payload, &resp); err != nil {
		return nil, invalid("payload", err.Error())
	}
	if err := ValidateTaskResponse(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
