package agentcore

import "context"

// Provider abstracts the LLM backend.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// ChatWithTools sends a request with tool definitions and tool_choice=auto,
	// returning a response that may carry tool calls.
	ChatWithTools(ctx context.Context, req ChatRequest, tools []ToolDefinition) (ChatResponse, error)
	// ChatStream streams deltas into ch in arrival order, then returns the
	// final accumulated response with usage stats. The provider closes ch
	// when streaming ends, including on error.
	ChatStream(ctx context.Context, req ChatRequest, ch chan<- StreamChunk) (ChatResponse, error)
	// Name returns the provider name (e.g. "openaicompat").
	Name() string
}

// StreamChunk is one server-sent delta from a streaming chat completion.
// Text deltas carry Content; tool-call deltas carry an Index-keyed
// fragment meant to be concatenated by index as they arrive.
type StreamChunk struct {
	Content         string
	IsToolCallDelta bool
	ToolCallIndex   int
	ToolCallID      string
	ToolCallName    string
	ToolCallArgs    string
}
