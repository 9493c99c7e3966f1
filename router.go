package agentcore

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// RouteMatch is the outcome of a successful deterministic-router match:
// the intent it matched and the tool call that answers it directly,
// bypassing the LLM entirely.
type RouteMatch struct {
	Intent   Intent
	ToolName string
	ToolArgs json.RawMessage
}

// dateTimePattern, walletAddressPattern, etc. are grounded on the
// teacher's LLM-based ClassifyIntent (internal/app/intent.go), but
// reimplemented as regexp matches so the router never makes an LLM
// call — the router must match before any LLM call happens.
var (
	dateTimePattern = regexp.MustCompile(`(?i)\b(what(?:'s| is) the (?:date|time)|current (?:date|time)|what day is it)\b`)

	walletAddressPattern = regexp.MustCompile(`(?i)\b(my |the )?wallet address\b`)
	walletBalancePattern = regexp.MustCompile(`(?i)\b(my |the )?(wallet )?balance\b`)

	schedulerVerbPattern = regexp.MustCompile(`(?i)\b(remind me|set a reminder|schedule (?:a )?reminder|cancel (?:the |my )?reminder|list (?:my )?reminders)\b`)

	socialVerbPattern = regexp.MustCompile(`(?i)\b(post (?:this|that|a)? ?(?:to|on) (?:twitter|x|the social network)|tweet this|share this on)\b`)
)

// classifyIntent matches text against the high-confidence intent
// patterns in priority order. Returns IntentNone when nothing matches,
// signalling the caller should fall through to the LLM.
func classifyIntent(text string) Intent {
	switch {
	case dateTimePattern.MatchString(text):
		return IntentDateTime
	case walletAddressPattern.MatchString(text):
		return IntentWalletAddress
	case walletBalancePattern.MatchString(text):
		return IntentWalletBalance
	case schedulerVerbPattern.MatchString(text):
		return IntentSchedulerVerb
	case socialVerbPattern.MatchString(text):
		return IntentSocialVerb
	}
	return IntentNone
}

// routeDeterministic attempts to match userText against the router's
// intent patterns and, on a match, returns the direct tool invocation
// whose output becomes the reply with no LLM call involved. ok is
// false when no high-confidence pattern matched and the caller should
// proceed to the normal LLM-driven loop.
//
// IntentDateTime is answered inline (it needs no tool, no registry
// lookup) since it is pure local-clock arithmetic.
func routeDeterministic(ctx context.Context, tools *ToolRegistry, userText string) (reply string, matched Intent, ok bool) {
	intent := classifyIntent(userText)
	if intent == IntentNone {
		return "", IntentNone, false
	}

	if intent == IntentDateTime {
		return currentTimeContext(), intent, true
	}

	name, args := routedTool(intent, userText)
	if name == "" {
		return "", IntentNone, false
	}
	result, _ := tools.Execute(ctx, name, args)
	return result.Content, intent, true
}

// routedTool maps a matched intent to the tool call that answers it.
func routedTool(intent Intent, userText string) (name string, args json.RawMessage) {
	switch intent {
	case IntentWalletAddress:
		return "wallet_address", json.RawMessage(`{}`)
	case IntentWalletBalance:
		return "wallet_balance", json.RawMessage(`{}`)
	case IntentSchedulerVerb:
		return schedulerTool(userText)
	case IntentSocialVerb:
		return "social_post", marshalArgs(map[string]string{"text": userText})
	}
	return "", nil
}

// schedulerTool distinguishes "cancel"/"list" verbs from "remind me"
// creation verbs within the scheduler-verb intent, since both route
// through the same pattern family but hit different tools.
func schedulerTool(userText string) (string, json.RawMessage) {
	lower := strings.ToLower(userText)
	switch {
	case strings.Contains(lower, "cancel"):
		return "cancel_reminder", marshalArgs(map[string]string{"text": userText})
	case strings.Contains(lower, "list"):
		return "list_reminders", json.RawMessage(`{}`)
	default:
		return "schedule_reminder", marshalArgs(map[string]string{"text": userText})
	}
}

func marshalArgs(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
