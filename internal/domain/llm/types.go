// Package llm defines the contract with the completion stream service.
package llm

import (
	"context"
	"encoding/json"

	"isuite-server/chat-api/internal/domain/stream"
)

// Provider defines the contract for calling the completion service.
type Provider interface {
	// CreateChatCompletion performs a non streaming completion, used for
	// title inference.
	CreateChatCompletion(reqCtx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)

	// StreamTurn opens an event stream for one assistant turn. The
	// returned stream yields normalized events until a terminal event
	// or io.EOF.
	StreamTurn(reqCtx context.Context, req TurnRequest) (EventStream, error)
}

// EventStream abstracts the SSE response of a streaming turn.
type EventStream interface {
	Recv() (*stream.Event, error)
	Close() error
}

// TurnRequest describes one streaming assistant turn.
type TurnRequest struct {
	Model    string        `json:"model"`
	System   string        `json:"system,omitempty"`
	Messages []ChatMessage `json:"messages"`
	MaxSteps int           `json:"max_steps,omitempty"`
	UserID   string        `json:"user_id,omitempty"`
	UserName string        `json:"user_name,omitempty"`
}

// ChatCompletionRequest mirrors the OpenAI compatible request shape.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// ChatMessage represents a single message in the conversation history.
type ChatMessage struct {
	Role       string      `json:"role"`
	Content    interface{} `json:"content"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID *string     `json:"tool_call_id,omitempty"`
}

// ToolCall mirrors the OpenAI tool call format.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction contains the function name and JSON arguments.
type ToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ChatCompletionResponse captures the non-streaming completion payload.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *Usage                 `json:"usage,omitempty"`
}

// ChatCompletionChoice represents one completion choice.
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage contains token accounting metadata.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
