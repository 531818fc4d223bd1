package v1

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestMessageRoundTrip(t *testing.T) {
	m := validMessage()
	m.Tags = []string{"urgent"}
	m.Context.UserID = "user-7"
	m.Context.Baggage["tenant"] = "acme"

	data, err := msgpack.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var got Message
	if err := msgpack.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got.ID != m.ID {
		t.Errorf("id mismatch: %s != %s", got.ID, m.ID)
	}
	if got.MessageType != m.MessageType {
		t.Errorf("message_type mismatch: %s != %s", got.MessageType, m.MessageType)
	}
	if got.Sender != m.Sender || got.Recipient != m.Recipient {
		t.Errorf("addressing mismatch: %s->%s != %s->%s", got.Sender, got.Recipient, m.Sender, m.Recipient)
	}
	if !got.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("created_at mismatch: %v != %v", got.CreatedAt, m.CreatedAt)
	}
	if got.Context.UserID != "user-7" {
		t.Errorf("context user_id lost: %q", got.Context.UserID)
	}
	if got.Context.Baggage["tenant"] != "acme" {
		t.Errorf("baggage lost: %v", got.Context.Baggage)
	}
	if got.Delivery != m.Delivery {
		t.Errorf("delivery options mismatch: %+v != %+v", got.Delivery, m.Delivery)
	}
	if err := ValidateMessage(&got); err != nil {
		t.Errorf("round-tripped message invalid: %v", err)
	}
}

func TestReplyCorrelation(t *testing.T) {
	m := validMessage()
	reply := m.Reply(MessageTaskResponse, map[string]interface{}{"task_id": "t-1"})

	if reply.CorrelationID != m.ID {
		t.Errorf("correlation_id = %s, want %s", reply.CorrelationID, m.ID)
	}
	if reply.Sender != m.Recipient || reply.Recipient != m.Sender {
		t.Error("reply must swap sender and recipient")
	}
	if reply.Context.RequestID != m.Context.RequestID {
		t.Error("reply must carry the original context")
	}
	if reply.ID == m.ID {
		t.Error("reply must have a fresh id")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	req := NewTaskRequest(TaskCodeWriterGenerate, "t-42", map[string]interface{}{
		"description": "sort a list",
	})
	req.PreferredAgent = "code_writer_agent"

	payload, err := EncodePayload(req)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	got, err := DecodeTaskRequest(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.TaskID != "t-42" {
		t.Errorf("task_id = %s, want t-42", got.TaskID)
	}
	if got.TaskType != TaskCodeWriterGenerate {
		t.Errorf("task_type = %s, want %s", got.TaskType, TaskCodeWriterGenerate)
	}
	if got.PreferredAgent != "code_writer_agent" {
		t.Errorf("preferred_agent = %s", got.PreferredAgent)
	}
	if got.Priority != 5 {
		t.Errorf("priority = %d, want 5", got.Priority)
	}
}

func TestDecodeTaskResponsePayload(t *testing.T) {
	resp := &TaskResponse{
		TaskID:        "t-1",
		Status:        TaskStatusCompleted,
		AssignedAgent: "research_agent",
		Metrics:       TaskMetrics{ProcessingTimeMs: 12},
	}
	payload, err := EncodePayload(resp)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := DecodeTaskResponse(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Status != TaskStatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
	if got.Metrics.ProcessingTimeMs != 12 {
		t.Errorf("processing_time_ms = %d", got.Metrics.ProcessingTimeMs)
	}
}
