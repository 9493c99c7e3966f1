package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tool defines an agent capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ToolRegistry holds all registered tools and dispatches execution,
// emitting tool:start/tool:end events on an EventBus if one is set.
// The registry is expected to be immutable once the runtime starts
// serving requests; Add is only safe during construction.
type ToolRegistry struct {
	tools []Tool
	index map[string]Tool
	bus   *EventBus
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{index: make(map[string]Tool)}
}

// SetEventBus wires an EventBus that receives tool:start/tool:end
// events for every Execute call. A nil bus (the default) disables
// event emission.
func (r *ToolRegistry) SetEventBus(bus *EventBus) { r.bus = bus }

// Add registers a tool, indexing each of its definitions by name.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
	for _, d := range t.Definitions() {
		r.index[d.Name] = t
	}
}

// AllDefinitions returns tool definitions from all registered tools.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute dispatches a tool call by name, emitting tool:start before
// the handler runs and tool:end after it returns. Unknown tool names
// produce "Unknown tool: <name>" rather than an error; success is
// derived from the output not starting with "Error".
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.index[name]
	if !ok {
		return ToolResult{Content: fmt.Sprintf("Unknown tool: %s", name)}, nil
	}

	r.emitStart(name, args)
	start := time.Now()
	result, err := t.Execute(ctx, name, args)
	duration := time.Since(start)

	output := result.Content
	if err != nil {
		output = fmt.Sprintf("Error executing %s: %s", name, err)
		result = ToolResult{Content: output}
	} else if result.Error != "" {
		output = fmt.Sprintf("Error executing %s: %s", name, result.Error)
		result = ToolResult{Content: output}
	}
	r.emitEnd(name, duration, output)

	return result, nil
}

func (r *ToolRegistry) emitStart(name string, args json.RawMessage) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ToolStartEvent{
		Tool:  name,
		Args:  args,
		Label: toolLabel(name),
	})
}

func (r *ToolRegistry) emitEnd(name string, duration time.Duration, output string) {
	if r.bus == nil {
		return
	}
	preview := output
	if len(preview) > 1200 {
		preview = preview[:1200]
	}
	r.bus.Publish(ToolEndEvent{
		Tool:          name,
		DurationMs:    duration.Milliseconds(),
		Success:       !strings.HasPrefix(output, "Error"),
		OutputPreview: preview,
	})
}

// toolLabelMap gives human-friendly progress labels for well-known
// tools; anything else falls back to "Using <name>".
var toolLabelMap = map[string]string{
	"wallet_address":    "Checking wallet address",
	"wallet_balance":    "Checking wallet balance",
	"perplexity_search": "Searching the web",
	"schedule_reminder": "Scheduling a reminder",
	"cancel_reminder":   "Cancelling a reminder",
	"remember_this":     "Saving to memory",
}

func toolLabel(name string) string {
	if label, ok := toolLabelMap[name]; ok {
		return label
	}
	return fmt.Sprintf("Using %s", name)
}
