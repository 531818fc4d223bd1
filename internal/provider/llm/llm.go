// Package llm defines the chat-model contract consumed by workers. The
// orchestration core never talks to a model API directly; it goes through
// this interface so deployments can swap providers.
package llm

import "context"

// Roles for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one turn in a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest is the plain completion form.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
}

// ChatResponse carries the assistant's reply.
type ChatResponse struct {
	Content string
	Usage   *Usage
}

// ToolDefinition describes a callable the model may invoke. Parameters is a
// JSON-schema-shaped object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall is the model's request to invoke a tool. Arguments is the raw
// JSON string as produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ResponsesRequest is the tool-capable form.
type ResponsesRequest struct {
	Model       string
	Input       []ChatMessage
	Tools       []ToolDefinition
	Temperature float32
	MaxTokens   int
}

// ResponsesChoice is one candidate answer with any tool calls it wants made.
type ResponsesChoice struct {
	Content   string
	ToolCalls []ToolCall
}

// ResponsesResponse carries the candidate answers.
type ResponsesResponse struct {
	Choices []ResponsesChoice
	Usage   *Usage
}

// Client is the provider contract.
type Client interface {
	// CreateChat runs one plain completion.
	CreateChat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// CreateResponses runs one tool-capable completion.
	CreateResponses(ctx context.Context, req ResponsesRequest) (*ResponsesResponse, error)
}
