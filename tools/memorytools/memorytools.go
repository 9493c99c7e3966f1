// Package memorytools exposes the layered memory manager's public
// tool-callable operations (writeMemoryEntry/writeGoalEntry/rememberThis)
// through the standard Tool interface.
package memorytools

import (
	"context"
	"encoding/json"

	oasis "github.com/lattice-run/agentcore"
)

// Tool wraps a MemoryManager as an agent-callable capability.
type Tool struct {
	memory *oasis.MemoryManager
}

// Compile-time interface check.
var _ oasis.Tool = (*Tool)(nil)

// New creates a memorytools Tool backed by memory.
func New(memory *oasis.MemoryManager) *Tool {
	return &Tool{memory: memory}
}

func (t *Tool) Definitions() []oasis.ToolDefinition {
	return []oasis.ToolDefinition{
		{
			Name:        "write_memory_entry",
			Description: "Append a fact, preference, or rule to persistent memory. Use store=\"semantic\" for facts/preferences, store=\"procedural\" for operating rules.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"store":{"type":"string","enum":["semantic","procedural"],"description":"Which memory store to write to"},
				"content":{"type":"string","description":"The fact, preference, or rule to record"},
				"section":{"type":"string","description":"Optional section heading (defaults to Known Facts / Operating Rules)"}
			},"required":["store","content"]}`),
		},
		{
			Name:        "write_goal_entry",
			Description: "Create or update a persistent goal by title: optionally attach a progress note, change its status, or set tags.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"title":{"type":"string","description":"Goal title, used to find or create the goal"},
				"progress":{"type":"string","description":"Optional progress note to append"},
				"status":{"type":"string","enum":["active","completed","paused","cancelled"],"description":"Optional new status"},
				"tags":{"type":"array","items":{"type":"string"},"description":"Optional tags (replaces existing)"}
			},"required":["title"]}`),
		},
		{
			Name:        "remember_this",
			Description: "Remember a piece of information as a known fact and a tracked goal, in one step. Use when the user explicitly says to remember something.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"The text to remember"}},"required":["text"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (oasis.ToolResult, error) {
	switch name {
	case "write_memory_entry":
		return t.writeMemoryEntry(args)
	case "write_goal_entry":
		return t.writeGoalEntry(args)
	case "remember_this":
		return t.rememberThis(args)
	default:
		return oasis.ToolResult{Error: "unknown memory tool: " + name}, nil
	}
}

func (t *Tool) writeMemoryEntry(args json.RawMessage) (oasis.ToolResult, error) {
	var p struct {
		Store   string `json:"store"`
		Content string `json:"content"`
		Section string `json:"section"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return oasis.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	result, err := t.memory.WriteMemoryEntry(p.Store, p.Content, p.Section)
	if err != nil {
		return oasis.ToolResult{Error: err.Error()}, nil
	}
	return oasis.ToolResult{Content: result}, nil
}

func (t *Tool) writeGoalEntry(args json.RawMessage) (oasis.ToolResult, error) {
	var p struct {
		Title    string   `json:"title"`
		Progress string   `json:"progress"`
		Status   string   `json:"status"`
		Tags     []string `json:"tags"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return oasis.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	result, err := t.memory.WriteGoalEntry(p.Title, p.Progress, p.Status, p.Tags)
	if err != nil {
		return oasis.ToolResult{Error: err.Error()}, nil
	}
	return oasis.ToolResult{Content: result}, nil
}

func (t *Tool) rememberThis(args json.RawMessage) (oasis.ToolResult, error) {
	var p struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return oasis.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	result, err := t.memory.RememberThis(p.Text)
	if err != nil {
		return oasis.ToolResult{Error: err.Error()}, nil
	}
	return oasis.ToolResult{Content: result}, nil
}
