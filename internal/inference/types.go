package inference

import (
	"context"
	"encoding/json"
	"time"

	"github.com/edgebench/edgebench/pkg/models"
)

// Engine is the inference backend consumed by the run scheduler. Stream
// delivers generation output as it arrives; cancelling the context ends the
// generation at the next token boundary.
type Engine interface {
	LoadModel(ctx context.Context, modelID string) error
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}

// Request describes a single generation call
type Request struct {
	ModelID  string
	Mode     models.Mode
	Messages []Message
}

// Message represents a single message in a chat conversation
type Message struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	ReasoningContent string     `json:"reasoning_content,omitempty"` // For reasoning models
	ToolCallID       string     `json:"tool_call_id,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its JSON-encoded arguments
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a tool schema advertised to the model
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function half of a tool schema
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// RunPythonTool is the name of the builtin code execution tool
const RunPythonTool = "run_python"

// BuiltinTools returns the tool schemas advertised in tool_use mode
func BuiltinTools() []Tool {
	return []Tool{
		{
			Type: "function",
			Function: ToolFunction{
				Name:        RunPythonTool,
				Description: "Execute a Python snippet and return its stdout and stderr.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"code": {"type": "string", "description": "Python source to execute"}
					},
					"required": ["code"]
				}`),
			},
		},
	}
}

// EventType discriminates stream events
type EventType int

const (
	// EventToken carries one streamed content delta
	EventToken EventType = iota
	// EventToolCall carries a fully assembled tool invocation
	EventToolCall
	// EventFinal carries the complete generation result; always the last
	// event on a stream that ended cleanly
	EventFinal
	// EventError carries a mid-stream failure; the stream ends after it
	EventError
)

// Event is a single item on a generation stream. Exactly one payload field
// is set, selected by Type.
type Event struct {
	Type EventType

	// EventToken
	Text      string
	Reasoning bool // token belongs to the reasoning channel
	ArrivedAt time.Time

	// EventToolCall
	ToolCall *ToolCall

	// EventFinal
	Final *Final

	// EventError
	Err error
}

// Final is the terminal payload of a clean stream
type Final struct {
	Text         string
	Reasoning    string
	FinishReason string
	Usage        Usage
}

// Completion is a non-streaming generation result
type Completion struct {
	Text         string
	Reasoning    string
	FinishReason string
	Usage        Usage
}

// Usage holds token usage statistics as reported by the engine
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatRequest is the OpenAI-compatible chat completion request body
type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Temperature   float64        `json:"temperature"`
	TopP          float64        `json:"top_p"`
	MaxTokens     int            `json:"max_tokens"`
	N             int            `json:"n"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	Tools         []Tool         `json:"tools,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatResponse is the OpenAI-compatible non-streaming response body
type chatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// errorResponse represents an error payload from the engine
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
