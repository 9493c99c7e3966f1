package agentcore

import (
	"context"
	"encoding/json"
	"testing"
)

// canned is a Tool fake returning a fixed ToolResult per tool name,
// recording which names were invoked.
type canned struct {
	outputs map[string]string
	called  []string
}

func (c *canned) Definitions() []ToolDefinition {
	var defs []ToolDefinition
	for name := range c.outputs {
		defs = append(defs, ToolDefinition{Name: name})
	}
	return defs
}

func (c *canned) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	c.called = append(c.called, name)
	return ToolResult{Content: c.outputs[name]}, nil
}

func newGuardLoop(t *testing.T, tool *canned, reply string) *AgentLoop {
	t.Helper()
	tools := NewToolRegistry()
	if tool != nil {
		tools.Add(tool)
	}
	return NewAgentLoop(&stubProvider{reply: reply}, tools, NewExecutor(ResiliencePolicy{}, nil), nil, nil, nil, nil, nil, AgentLoopConfig{})
}

func TestWalletGuard_FillsInMissingBalanceLookup(t *testing.T) {
	tool := &canned{outputs: map[string]string{"wallet_balance": "12.5 ETH"}}
	a := newGuardLoop(t, tool, "")

	st := &guardState{UserText: "what's my wallet balance?", Draft: "Sure thing.", ToolsCalled: map[string]bool{}}
	if err := walletGuard(context.Background(), a, st); err != nil {
		t.Fatalf("walletGuard: %v", err)
	}

	if !st.ToolsCalled["wallet_balance"] {
		t.Error("expected wallet_balance marked as called")
	}
	if st.Draft == "Sure thing." {
		t.Error("expected draft to be prepended with the balance lookup")
	}
}

func TestWalletGuard_NoopWhenToolAlreadyCalled(t *testing.T) {
	a := newGuardLoop(t, nil, "")
	st := &guardState{UserText: "what's my wallet balance?", Draft: "12.5 ETH", ToolsCalled: map[string]bool{"wallet_balance": true}}

	if err := walletGuard(context.Background(), a, st); err != nil {
		t.Fatalf("walletGuard: %v", err)
	}
	if st.Draft != "12.5 ETH" {
		t.Errorf("draft changed unexpectedly: %q", st.Draft)
	}
}

func TestWalletGuard_IgnoresUnrelatedText(t *testing.T) {
	a := newGuardLoop(t, nil, "")
	st := &guardState{UserText: "what's the weather", Draft: "It's sunny.", ToolsCalled: map[string]bool{}}

	if err := walletGuard(context.Background(), a, st); err != nil {
		t.Fatalf("walletGuard: %v", err)
	}
	if st.Draft != "It's sunny." {
		t.Errorf("draft changed unexpectedly: %q", st.Draft)
	}
}

func TestRealtimeSearchGuard_RewritesDraftWithLiveResults(t *testing.T) {
	tool := &canned{outputs: map[string]string{"perplexity_search": "BTC is $70,000 right now."}}
	a := newGuardLoop(t, tool, "Bitcoin is currently trading at $70,000.")

	st := &guardState{UserText: "what's the current price of bitcoin", Draft: "I don't have live data.", ToolsCalled: map[string]bool{}}
	if err := realtimeSearchGuard(context.Background(), a, st); err != nil {
		t.Fatalf("realtimeSearchGuard: %v", err)
	}

	if !st.ToolsCalled["perplexity_search"] {
		t.Error("expected perplexity_search marked as called")
	}
	if st.Draft != "Bitcoin is currently trading at $70,000." {
		t.Errorf("draft = %q, want the rewritten reply", st.Draft)
	}
}

func TestRealtimeSearchGuard_NoopWhenSearchAlreadyCalled(t *testing.T) {
	a := newGuardLoop(t, nil, "")
	st := &guardState{UserText: "what's today's weather", Draft: "Sunny.", ToolsCalled: map[string]bool{"perplexity_search": true}}

	if err := realtimeSearchGuard(context.Background(), a, st); err != nil {
		t.Fatalf("realtimeSearchGuard: %v", err)
	}
	if st.Draft != "Sunny." {
		t.Errorf("draft changed unexpectedly: %q", st.Draft)
	}
}

func TestClaimGuard_BacksUpAnUnverifiedSearchClaim(t *testing.T) {
	tool := &canned{outputs: map[string]string{"perplexity_search": "Confirmed: it rained yesterday."}}
	a := newGuardLoop(t, tool, "")

	st := &guardState{UserText: "did it rain yesterday", Draft: "I searched online and it did rain.", ToolsCalled: map[string]bool{}}
	if err := claimGuard(context.Background(), a, st); err != nil {
		t.Fatalf("claimGuard: %v", err)
	}

	if !st.ToolsCalled["perplexity_search"] {
		t.Error("expected perplexity_search to be invoked to back up the claim")
	}
}

func TestClaimGuard_NoopWhenToolActuallyFired(t *testing.T) {
	a := newGuardLoop(t, nil, "")
	st := &guardState{UserText: "post this", Draft: "I posted this on X.", ToolsCalled: map[string]bool{"social_post": true}}

	if err := claimGuard(context.Background(), a, st); err != nil {
		t.Fatalf("claimGuard: %v", err)
	}
	if st.Draft != "I posted this on X." {
		t.Errorf("draft changed unexpectedly: %q", st.Draft)
	}
}

func TestActionPromiseGuard_FlagsRetryOnBarePromise(t *testing.T) {
	a := newGuardLoop(t, nil, "")
	st := &guardState{UserText: "what's my wallet balance?", Draft: "Let me check that for you.", ToolsCalled: map[string]bool{}}

	if err := actionPromiseGuard(context.Background(), a, st); err != nil {
		t.Fatalf("actionPromiseGuard: %v", err)
	}
	if !st.RetryLoop {
		t.Error("expected RetryLoop to be set")
	}
	if st.RetryPrompt == "" {
		t.Error("expected a non-empty RetryPrompt")
	}
}

func TestActionPromiseGuard_NoopWhenAToolAlreadyFired(t *testing.T) {
	a := newGuardLoop(t, nil, "")
	st := &guardState{UserText: "what's my wallet balance?", Draft: "Let me check that for you.", ToolsCalled: map[string]bool{"wallet_balance": true}}

	if err := actionPromiseGuard(context.Background(), a, st); err != nil {
		t.Fatalf("actionPromiseGuard: %v", err)
	}
	if st.RetryLoop {
		t.Error("expected RetryLoop to stay false once a tool already fired")
	}
}

func TestActionPromiseGuard_NoopWhenIntentIsNone(t *testing.T) {
	a := newGuardLoop(t, nil, "")
	st := &guardState{UserText: "tell me a joke", Draft: "Let me check that for you.", ToolsCalled: map[string]bool{}}

	if err := actionPromiseGuard(context.Background(), a, st); err != nil {
		t.Fatalf("actionPromiseGuard: %v", err)
	}
	if st.RetryLoop {
		t.Error("expected RetryLoop to stay false for a non-tool intent")
	}
}
