// Package v1 defines the MCP wire schema: the message envelope, task
// request/response records, agent registrations, and their validation rules.
// Messages are exchanged as msgpack-encoded bodies over the framed transport.
package v1

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryGuarantee controls how a message is retried and acknowledged.
type DeliveryGuarantee string

const (
	DeliveryAtMostOnce  DeliveryGuarantee = "AT_MOST_ONCE"
	DeliveryAtLeastOnce DeliveryGuarantee = "AT_LEAST_ONCE"
	// DeliveryExactlyOnce is declared on the wire but not implemented;
	// validation rejects it with CONFIGURATION_ERROR.
	DeliveryExactlyOnce DeliveryGuarantee = "EXACTLY_ONCE"
)

// CostBudget tracks spend limits for a call chain.
type CostBudget struct {
	MaxUSD     float64            `msgpack:"max_usd" json:"max_usd"`
	MaxTokens  int64              `msgpack:"max_tokens" json:"max_tokens"`
	UsedUSD    float64            `msgpack:"used_usd" json:"used_usd"`
	UsedTokens int64              `msgpack:"used_tokens" json:"used_tokens"`
	ModelCosts map[string]float64 `msgpack:"model_costs" json:"model_costs"`
}

// ResourceLimits caps resource usage for a call chain.
type ResourceLimits struct {
	MaxCPUPercent         int   `msgpack:"max_cpu_percent" json:"max_cpu_percent"`
	MaxMemoryMB           int   `msgpack:"max_memory_mb" json:"max_memory_mb"`
	MaxConcurrentRequests int   `msgpack:"max_concurrent_requests" json:"max_concurrent_requests"`
	MaxProcessingTimeMs   int64 `msgpack:"max_processing_time_ms" json:"max_processing_time_ms"`
}

// Context carries tracing identifiers and per-request settings through the
// bus. Trace and span ids are opaque to the core and forwarded verbatim.
type Context struct {
	TraceID      string            `msgpack:"trace_id" json:"trace_id"`
	SpanID       string            `msgpack:"span_id" json:"span_id"`
	ParentSpanID string            `msgpack:"parent_span_id,omitempty" json:"parent_span_id,omitempty"`
	Baggage      map[string]string `msgpack:"baggage" json:"baggage"`
	UserID       string            `msgpack:"user_id,omitempty" json:"user_id,omitempty"`
	SessionID    string            `msgpack:"session_id,omitempty" json:"session_id,omitempty"`
	WorkspaceID  string            `msgpack:"workspace_id,omitempty" json:"workspace_id,omitempty"`
	RequestID    string            `msgpack:"request_id" json:"request_id"`
	TimeoutMs    int64             `msgpack:"timeout_ms" json:"timeout_ms"`
	Metadata     map[string]string `msgpack:"metadata" json:"metadata"`
	Budget       *CostBudget       `msgpack:"budget,omitempty" json:"budget,omitempty"`
	Limits       *ResourceLimits   `msgpack:"limits,omitempty" json:"limits,omitempty"`
}

// DeliveryOptions configure retries and priority for a single message.
// RetryCount is the maximum number of retries, not the current attempt.
type DeliveryOptions struct {
	Guarantee    DeliveryGuarantee `msgpack:"guarantee" json:"guarantee"`
	RetryCount   int               `msgpack:"retry_count" json:"retry_count"`
	RetryDelayMs int64             `msgpack:"retry_delay_ms" json:"retry_delay_ms"`
	RequireAck   bool              `msgpack:"require_ack" json:"require_ack"`
	Priority     int               `msgpack:"priority" json:"priority"`
}

// Message is the wire envelope. The payload shape is bound by MessageType.
type Message struct {
	ID            string                 `msgpack:"id" json:"id"`
	CorrelationID string                 `msgpack:"correlation_id,omitempty" json:"correlation_id,omitempty"`
	TraceID       string                 `msgpack:"trace_id" json:"trace_id"`
	SpanID        string                 `msgpack:"span_id" json:"span_id"`
	Sender        string                 `msgpack:"sender" json:"sender"`
	Recipient     string                 `msgpack:"recipient" json:"recipient"`
	MessageType   string                 `msgpack:"message_type" json:"message_type"`
	Payload       map[string]interface{} `msgpack:"payload" json:"payload"`
	Tags          []string               `msgpack:"tags" json:"tags"`
	Context       Context                `msgpack:"context" json:"context"`
	Delivery      DeliveryOptions        `msgpack:"delivery" json:"delivery"`
	CreatedAt     time.Time              `msgpack:"created_at" json:"created_at"`
	ExpiresAt     *time.Time             `msgpack:"expires_at,omitempty" json:"expires_at,omitempty"`
	SecurityToken string                 `msgpack:"security_token,omitempty" json:"security_token,omitempty"`
	Permissions   []string               `msgpack:"permissions" json:"permissions"`
}

// NewMessage assembles a message envelope with a fresh id and UTC timestamp.
// Trace and span ids are taken from the context.
func NewMessage(messageType, sender, recipient string, payload map[string]interface{}, ctx Context) *Message {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Message{
		ID:          uuid.New().String(),
		TraceID:     ctx.TraceID,
		SpanID:      ctx.SpanID,
		Sender:      sender,
		Recipient:   recipient,
		MessageType: messageType,
		Payload:     payload,
		Tags:        []string{},
		Context:     ctx,
		Delivery:    NewDeliveryOptions(),
		CreatedAt:   time.Now().UTC(),
		Permissions: []string{},
	}
}

// Reply builds a response envelope correlated to m, with sender and
// recipient swapped and the context carried over.
func (m *Message) Reply(messageType string, payload map[string]interface{}) *Message {
	reply := NewMessage(messageType, m.Recipient, m.Sender, payload, m.Context)
	reply.CorrelationID = m.ID
	reply.Delivery = m.Delivery
	return reply
}

// NewContext creates a request context with fresh trace/span ids and a
// default 30 s timeout.
func NewContext(requestID string) Context {
	return Context{
		TraceID:   uuid.New().String(),
		SpanID:    uuid.New().String(),
		Baggage:   map[string]string{},
		RequestID: requestID,
		TimeoutMs: 30000,
		Metadata:  map[string]string{},
	}
}

// NewDeliveryOptions returns the default delivery settings: at-least-once
// with three retries, 1 s delay, ack required, priority 5.
func NewDeliveryOptions() DeliveryOptions {
	return DeliveryOptions{
		Guarantee:    DeliveryAtLeastOnce,
		RetryCount:   3,
		RetryDelayMs: 1000,
		RequireAck:   true,
		Priority:     5,
	}
}
