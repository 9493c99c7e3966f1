package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type mockTool struct{}

func (m mockTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "greet", Description: "Say hello"}}
}

func (m mockTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "hello from " + name}, nil
}

func TestToolRegistry(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(mockTool{})

	defs := reg.AllDefinitions()
	if len(defs) != 1 || defs[0].Name != "greet" {
		t.Fatalf("expected 1 definition 'greet', got %v", defs)
	}

	res, err := reg.Execute(context.Background(), "greet", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "hello from greet" {
		t.Errorf("expected 'hello from greet', got %q", res.Content)
	}

	res, err = reg.Execute(context.Background(), "nonexistent", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "Unknown tool: nonexistent" {
		t.Errorf("expected 'Unknown tool: nonexistent', got %q", res.Content)
	}
}

// --- Additional tool mocks ---

type mockToolCalc struct{}

func (m mockToolCalc) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "calc", Description: "Calculate"}}
}
func (m mockToolCalc) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "result from " + name}, nil
}

type errTool struct{}

func (e errTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "fail", Description: "Always fails"}}
}
func (e errTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{}, errors.New("tool broken")
}

type multiTool struct{}

func (m multiTool) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{Name: "read", Description: "Read file"},
		{Name: "write", Description: "Write file"},
	}
}
func (m multiTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "did " + name}, nil
}

// --- Registry edge case tests ---

func TestToolRegistryEmpty(t *testing.T) {
	reg := NewToolRegistry()

	defs := reg.AllDefinitions()
	if len(defs) != 0 {
		t.Errorf("expected 0 definitions, got %d", len(defs))
	}

	res, _ := reg.Execute(context.Background(), "anything", nil)
	if !strings.HasPrefix(res.Content, "Unknown tool:") {
		t.Errorf("expected unknown-tool message, got %q", res.Content)
	}
}

func TestToolRegistryMultipleTools(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(mockTool{})
	reg.Add(mockToolCalc{})

	defs := reg.AllDefinitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}

	res, err := reg.Execute(context.Background(), "greet", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "hello from greet" {
		t.Errorf("greet: got %q", res.Content)
	}

	res, err = reg.Execute(context.Background(), "calc", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "result from calc" {
		t.Errorf("calc: got %q", res.Content)
	}
}

func TestToolRegistryExecuteError(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(errTool{})

	res, err := reg.Execute(context.Background(), "fail", nil)
	if err != nil {
		t.Fatalf("expected Execute to swallow the handler error, got %v", err)
	}
	if res.Content != "Error executing fail: tool broken" {
		t.Errorf("got %q", res.Content)
	}
}

func TestToolRegistryMultiDefinitionTool(t *testing.T) {
	reg := NewToolRegistry()
	reg.Add(multiTool{})

	defs := reg.AllDefinitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}

	res, err := reg.Execute(context.Background(), "read", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "did read" {
		t.Errorf("read: got %q", res.Content)
	}

	res, err = reg.Execute(context.Background(), "write", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "did write" {
		t.Errorf("write: got %q", res.Content)
	}
}

func TestToolRegistry_EventBusEmitsStartAndEnd(t *testing.T) {
	bus := NewEventBus()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	reg := NewToolRegistry()
	reg.SetEventBus(bus)
	reg.Add(mockTool{})

	if _, err := reg.Execute(context.Background(), "greet", nil); err != nil {
		t.Fatal(err)
	}

	var start ToolStartEvent
	var end ToolEndEvent
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			switch e := ev.(type) {
			case ToolStartEvent:
				start = e
			case ToolEndEvent:
				end = e
			}
		default:
			t.Fatalf("expected 2 events, got %d", i)
		}
	}
	if start.Tool != "greet" {
		t.Errorf("expected start event for 'greet', got %q", start.Tool)
	}
	if !end.Success {
		t.Error("expected successful tool-end event")
	}
}
