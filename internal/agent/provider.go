// Package agent implements the orchestrator: the bounded planner loop
// that turns one admitted input into one final response, with tool use,
// streaming, refusal detection, persona classification, and single-shot
// provider fallback.
package agent

import (
	"context"
	"encoding/json"
)

// CompletionMessage is one turn of planner input. Tool results are
// carried as their own messages, matched back by ToolCallID.
type CompletionMessage struct {
	Role       string         // user, assistant, or tool
	Content    string
	ToolCalls  []PlannedCall  // set on assistant turns that requested tools
	ToolCallID string         // set on tool turns
}

// PlannedCall is a tool invocation the planner asked for.
type PlannedCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolDefinition describes one tool offered to the planner.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      json.RawMessage // JSON Schema for the arguments object
}

// CompletionRequest is a single planner invocation.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []ToolDefinition
	MaxTokens int
}

// CompletionChunk is one streamed fragment of a planner response. Text
// fragments stream as they arrive; tool calls and usage arrive on the
// final chunk (Done). A chunk carrying Error terminates the stream.
type CompletionChunk struct {
	Text         string
	ToolCalls    []PlannedCall
	Done         bool
	InputTokens  int
	OutputTokens int
	Error        error
}

// LLMProvider is the narrow seam to a planner backend. Concrete wire
// formats live behind it in the providers subpackage; the orchestrator
// never sees them.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

// ResponseChunk is one streamed fragment of an orchestrator response,
// consumed by the gateway's streaming surfaces.
type ResponseChunk struct {
	Text       string
	ToolResult *ToolResultEvent
	Event      *RuntimeEvent
	Error      error
}

// ToolResultEvent reports one finished tool call inside a response stream.
type ToolResultEvent struct {
	ToolCallID string
	ToolName   string
	Content    string
	IsError    bool
	DurationMs int64
}

// RuntimeEvent is a lifecycle notification carried in a response stream
// (iteration started, approval pending, fallback engaged, ...).
type RuntimeEvent struct {
	Kind    string
	Message string
}

type systemPromptKey struct{}

// WithSystemPrompt overrides the system prompt for one Process call.
func WithSystemPrompt(ctx context.Context, prompt string) context.Context {
	return context.WithValue(ctx, systemPromptKey{}, prompt)
}

// SystemPromptFromContext returns the override installed by
// WithSystemPrompt, if any.
func SystemPromptFromContext(ctx context.Context) (string, bool) {
	prompt, ok := ctx.Value(systemPromptKey{}).(string)
	return prompt, ok && prompt != ""
}
