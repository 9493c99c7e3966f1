package agentcore

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// guardState is the mutable context threaded through the post-hoc
// integrity guard chain: the user's turn, the draft reply each guard
// may rewrite, which tool names fired this turn, and the active plan
// (for the footer guard).
type guardState struct {
	UserText    string
	Draft       string
	ToolsCalled map[string]bool
	Plan        *Plan

	// RetryLoop/RetryPrompt are set by the action-promise guard to ask
	// RunAgent to push an override message and re-enter the streaming
	// loop, up to twice.
	RetryLoop   bool
	RetryPrompt string
}

// integrityGuard is a single conditional coercion run after the
// streaming tool loop produces a draft final reply. Guards run in
// order and each may rewrite st.Draft.
type integrityGuard func(ctx context.Context, a *AgentLoop, st *guardState) error

// defaultIntegrityGuards returns the ordered guard chain: wallet,
// realtime-search, claim, action-promise, plan-status footer. The
// plan-status footer is applied separately by RunAgent once the loop
// is done (it needs the final post-retry draft), so it is not part of
// this slice.
func defaultIntegrityGuards() []integrityGuard {
	return []integrityGuard{
		walletGuard,
		realtimeSearchGuard,
		claimGuard,
		actionPromiseGuard,
	}
}

var walletIntentPattern = regexp.MustCompile(`(?i)\bwallet (address|balance)\b`)

// walletGuard runs the appropriate wallet tool and prepends its output
// when the user asked a wallet question but no wallet_* tool fired.
func walletGuard(ctx context.Context, a *AgentLoop, st *guardState) error {
	if !walletIntentPattern.MatchString(st.UserText) {
		return nil
	}
	if st.ToolsCalled["wallet_address"] || st.ToolsCalled["wallet_balance"] {
		return nil
	}
	name, args := routedTool(classifyIntent(st.UserText), st.UserText)
	if name == "" || a.tools == nil {
		return nil
	}
	result, err := a.tools.Execute(ctx, name, args)
	if err != nil {
		return err
	}
	st.Draft = result.Content + "\n\n" + st.Draft
	st.ToolsCalled[name] = true
	return nil
}

var realtimePattern = regexp.MustCompile(`(?i)\b(latest|current|right now|today'?s|breaking|up[- ]to[- ]date|live) (news|price|score|weather|event|update)\b`)

// realtimeSearchGuard runs a live search and asks the LLM to rewrite
// the draft reply using the fresh results when the user asked for
// current/live facts but no search tool fired this turn.
func realtimeSearchGuard(ctx context.Context, a *AgentLoop, st *guardState) error {
	if !realtimePattern.MatchString(st.UserText) {
		return nil
	}
	if st.ToolsCalled["perplexity_search"] {
		return nil
	}
	if a.tools == nil {
		return nil
	}
	args, _ := json.Marshal(map[string]any{"query": st.UserText, "max_results": 5})
	result, err := a.tools.Execute(ctx, "perplexity_search", args)
	if err != nil {
		return err
	}
	st.ToolsCalled["perplexity_search"] = true

	resp, err := a.provider.Chat(ctx, ChatRequest{Messages: []ChatMessage{
		SystemMessage("Rewrite the draft reply using the live search results so it reflects current facts. Keep the same tone and length."),
		UserMessage("User asked: " + st.UserText),
		UserMessage("Draft reply: " + st.Draft),
		UserMessage("Live results: " + result.Content),
	}})
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp.Content) != "" {
		st.Draft = resp.Content
	}
	return nil
}

// claimFamilies maps a draft-reply claim phrase to the tool family it
// implies, and the deterministic-route tool to invoke if that family
// never actually fired this turn.
var claimFamilies = []struct {
	claim   *regexp.Regexp
	toolTag string
	route   func(userText string) (string, json.RawMessage)
}{
	{regexp.MustCompile(`(?i)\b(searched|looked up|checked online|found online)\b`), "perplexity_search", func(u string) (string, json.RawMessage) {
		args, _ := json.Marshal(map[string]any{"query": u, "max_results": 5})
		return "perplexity_search", args
	}},
	{regexp.MustCompile(`(?i)\b(posted|tweeted|shared (?:this|that) on)\b`), "social_post", func(u string) (string, json.RawMessage) {
		return "social_post", marshalArgs(map[string]string{"text": u})
	}},
	{regexp.MustCompile(`(?i)\b(scheduled|set (?:a |the )?reminder)\b`), "schedule_reminder", func(u string) (string, json.RawMessage) {
		return schedulerTool(u)
	}},
}

// claimGuard catches the draft reply claiming to have used a tool
// family that never actually fired, and invokes the deterministic
// route equivalent, prepending its output.
func claimGuard(ctx context.Context, a *AgentLoop, st *guardState) error {
	if a.tools == nil {
		return nil
	}
	for _, fam := range claimFamilies {
		if !fam.claim.MatchString(st.Draft) {
			continue
		}
		if st.ToolsCalled[fam.toolTag] {
			continue
		}
		name, args := fam.route(st.UserText)
		result, err := a.tools.Execute(ctx, name, args)
		if err != nil {
			return err
		}
		st.Draft = result.Content + "\n\n" + st.Draft
		st.ToolsCalled[name] = true
	}
	return nil
}

var promisePattern = regexp.MustCompile(`(?i)\b(i'?ll check|let me (?:check|look|find out|get)|i will (?:check|look|find))\b`)

// actionPromiseGuard detects the draft reply promising future action
// on a tool-capable request without having called a tool, and flags a
// retry with an override message telling the model to act or emit
// BLOCKED: <reason>.
func actionPromiseGuard(ctx context.Context, a *AgentLoop, st *guardState) error {
	if !promisePattern.MatchString(st.Draft) {
		return nil
	}
	if classifyIntent(st.UserText) == IntentNone {
		return nil
	}
	if len(st.ToolsCalled) > 0 {
		return nil
	}
	st.RetryLoop = true
	st.RetryPrompt = "You did not call a tool for a request that needs one. Call the appropriate tool now, or respond with exactly \"BLOCKED: <reason>\" if none applies."
	return nil
}
