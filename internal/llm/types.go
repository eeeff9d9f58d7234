// Package llm defines the completion contract and the OpenAI-compatible
// client used by the router, agent loop, planner, and summarizer.
package llm

import "context"

// Message is a single turn in a model conversation.
type Message struct {
	Role       string     `json:"role"` // "system" | "user" | "assistant" | "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// CacheControl marks this message as a stable prefix eligible for
	// provider-side prompt caching.
	CacheControl bool `json:"-"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID   string       `json:"id"`
	Type string       `json:"type"` // always "function"
	Name string       `json:"name"`
	Args string       `json:"arguments"` // raw JSON, possibly malformed
	Raw  FunctionCall `json:"-"`
}

// FunctionCall mirrors the wire-level function payload.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult carries a tool's output back into the conversation.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolDefinition describes a callable tool for the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema is the JSON-Schema object describing tool inputs.
type ParameterSchema struct {
	Type       string              `json:"type"` // always "object"
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one tool parameter.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// CompletionRequest is a provider-neutral chat completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
	// ToolChoice forces tool selection behavior: "" (auto), "none", "required".
	ToolChoice string
}

// TokenUsage reports provider-side token accounting.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CachedTokens     int `json:"cached_tokens,omitempty"`
}

// CompletionResponse is the provider-neutral result of one completion.
type CompletionResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string // "stop" | "tool_calls" | "length"
	Usage        TokenUsage
	Model        string
	// FromCache is true when the response was served by the local prompt cache.
	FromCache bool
}

// Client is the minimal completion interface every consumer depends on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}
