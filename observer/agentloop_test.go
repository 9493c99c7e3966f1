package observer

import (
	"context"
	"testing"

	oasis "github.com/lattice-run/agentcore"
)

func TestObservedAgentLoopRunAgent(t *testing.T) {
	inner := &mockProvider{name: "p", chatResp: oasis.ChatResponse{
		Content: "all done",
		Usage:   oasis.Usage{InputTokens: 4, OutputTokens: 6},
	}}
	tools := oasis.NewToolRegistry()
	executor := oasis.NewExecutor(oasis.ResiliencePolicy{}, nil)
	memory := oasis.NewMemoryManager(t.TempDir(), inner, nil)

	loop := oasis.NewAgentLoop(inner, tools, executor, memory, nil, nil, nil, nil, oasis.AgentLoopConfig{})
	ol := WrapAgentLoop(loop, testInstruments(t))

	result, err := ol.RunAgent(context.Background(), "hello", nil, oasis.RunAgentOptions{})
	if err != nil {
		t.Fatalf("RunAgent returned unexpected error: %v", err)
	}
	if result.Reply != "all done" {
		t.Errorf("Reply = %q, want %q", result.Reply, "all done")
	}
}
