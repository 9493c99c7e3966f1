// Package scheduler exposes reminder CRUD as agent-callable tools, a
// thin wrapper over the runtime Scheduler's public operations.
//
// schedule_reminder and cancel_reminder accept either the structured
// fields an LLM tool call would naturally fill in, or a raw "text"
// field — the shape the deterministic router passes, since it never
// parses natural language itself.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	oasis "github.com/lattice-run/agentcore"
)

// Tool wraps a Scheduler as an agent-callable capability.
type Tool struct {
	sched *oasis.Scheduler
}

// Compile-time interface check.
var _ oasis.Tool = (*Tool)(nil)

// New creates a scheduler Tool backed by sched.
func New(sched *oasis.Scheduler) *Tool {
	return &Tool{sched: sched}
}

func (t *Tool) Definitions() []oasis.ToolDefinition {
	return []oasis.ToolDefinition{
		{
			Name:        "schedule_reminder",
			Description: "Schedule a one-time reminder. Provide either structured fields (prompt + minutes or run_at_ms) or a raw \"text\" field carrying the user's request verbatim.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"text":{"type":"string","description":"The user's reminder request verbatim, e.g. \"remind me in 20 minutes to check the oven\""},
				"prompt":{"type":"string","description":"The prompt to submit as a user turn when the reminder fires"},
				"minutes":{"type":"integer","description":"Minutes from now to fire"},
				"run_at_ms":{"type":"integer","description":"Unix millisecond timestamp to fire at"},
				"lane":{"type":"string","enum":["fast","slow","background"],"description":"Lane to run on (default background)"}
			}}`),
		},
		{
			Name:        "cancel_reminder",
			Description: "Cancel a pending one-time reminder, by id or by a text description matching its prompt.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"id":{"type":"string","description":"Reminder id returned by schedule_reminder"},
				"text":{"type":"string","description":"Free text naming which reminder to cancel, matched against pending prompts"}
			}}`),
		},
		{
			Name:        "list_reminders",
			Description: "List all pending one-time reminders.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (oasis.ToolResult, error) {
	switch name {
	case "schedule_reminder":
		return t.scheduleReminder(args)
	case "cancel_reminder":
		return t.cancelReminder(args)
	case "list_reminders":
		return t.listReminders()
	default:
		return oasis.ToolResult{Error: "unknown scheduler tool: " + name}, nil
	}
}

// defaultReminderMinutes is used when free text names no explicit
// duration ("remind me to call Sam" with no "in N minutes/hours").
const defaultReminderMinutes = 60

var durationPattern = regexp.MustCompile(`(?i)\bin (\d+)\s*(minute|min|hour|hr)s?\b`)

// minutesFromText extracts an "in N minutes/hours" duration from free
// text, defaulting to defaultReminderMinutes when none is present.
func minutesFromText(text string) int {
	m := durationPattern.FindStringSubmatch(text)
	if m == nil {
		return defaultReminderMinutes
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return defaultReminderMinutes
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "hour") || strings.HasPrefix(strings.ToLower(m[2]), "hr") {
		return n * 60
	}
	return n
}

func (t *Tool) scheduleReminder(args json.RawMessage) (oasis.ToolResult, error) {
	var p struct {
		Text    string    `json:"text"`
		Prompt  string    `json:"prompt"`
		Minutes int       `json:"minutes"`
		RunAtMs int64     `json:"run_at_ms"`
		Lane    oasis.Lane `json:"lane"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return oasis.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	prompt := p.Prompt
	minutes := p.Minutes
	if prompt == "" {
		if p.Text == "" {
			return oasis.ToolResult{Error: "prompt or text is required"}, nil
		}
		prompt = p.Text
	}
	if minutes <= 0 && p.RunAtMs <= 0 {
		minutes = minutesFromText(p.Text)
	}

	var id string
	var err error
	switch {
	case p.RunAtMs > 0:
		id, err = t.sched.ScheduleOneTimeAt(p.RunAtMs, prompt, p.Lane)
	default:
		id, err = t.sched.ScheduleOneTimeIn(minutes, prompt, p.Lane)
	}
	if err != nil {
		return oasis.ToolResult{Error: err.Error()}, nil
	}
	return oasis.ToolResult{Content: fmt.Sprintf("reminder %s scheduled", id)}, nil
}

func (t *Tool) cancelReminder(args json.RawMessage) (oasis.ToolResult, error) {
	var p struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return oasis.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	id := p.ID
	if id == "" {
		if p.Text == "" {
			return oasis.ToolResult{Error: "id or text is required"}, nil
		}
		id = t.matchReminderByText(p.Text)
		if id == "" {
			return oasis.ToolResult{Content: fmt.Sprintf("no pending reminder matches %q", p.Text)}, nil
		}
	}

	found, err := t.sched.CancelOneTime(id)
	if err != nil {
		return oasis.ToolResult{Error: err.Error()}, nil
	}
	if !found {
		return oasis.ToolResult{Content: fmt.Sprintf("no reminder found with id %q", id)}, nil
	}
	return oasis.ToolResult{Content: fmt.Sprintf("reminder %s cancelled", id)}, nil
}

// matchReminderByText returns the id of the first pending reminder
// whose prompt contains text (case-insensitive), or "" if none match.
func (t *Tool) matchReminderByText(text string) string {
	lower := strings.ToLower(text)
	for _, r := range t.sched.ListOneTime() {
		if strings.Contains(strings.ToLower(r.Prompt), lower) {
			return r.ID
		}
	}
	return ""
}

func (t *Tool) listReminders() (oasis.ToolResult, error) {
	reminders := t.sched.ListOneTime()
	if len(reminders) == 0 {
		return oasis.ToolResult{Content: "no pending reminders"}, nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d pending reminder(s):\n", len(reminders))
	for _, r := range reminders {
		fmt.Fprintf(&sb, "- %s: %q at %d ms (lane %s)\n", r.ID, r.Prompt, r.RunAtMs, r.Lane)
	}
	return oasis.ToolResult{Content: sb.String()}, nil
}
