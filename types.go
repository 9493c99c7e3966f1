package agentcore

import "encoding/json"

// --- Lane queue & executor domain types ---

// Lane names a concurrency class with a fixed cap and a FIFO waiting list
// buffered to 4096 tasks (see laneQueue).
type Lane string

const (
	LaneFast       Lane = "fast"
	LaneSlow       Lane = "slow"
	LaneBackground Lane = "background"
)

// laneCaps is configuration, not runtime-tunable.
var laneCaps = map[Lane]int{
	LaneFast:       2,
	LaneSlow:       1,
	LaneBackground: 1,
}

// TaskStatus is the terminal state of a lane-queue task.
type TaskStatus string

const (
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// TaskResult is the outcome of one lane-queue submission.
type TaskResult struct {
	ID          string        `json:"id"`
	Lane        Lane          `json:"lane"`
	Reply       string        `json:"reply,omitempty"`
	History     []ChatMessage `json:"history,omitempty"`
	Status      TaskStatus    `json:"status"`
	Error       string        `json:"error,omitempty"`
	StartedAt   int64         `json:"started_at"`
	CompletedAt int64         `json:"completed_at"`
}

// RetryPolicy configures the resilient executor's backoff.
type RetryPolicy struct {
	MaxAttempts int     `json:"max_attempts"`
	BaseDelayMs int     `json:"base_delay_ms"`
	MaxDelayMs  int     `json:"max_delay_ms"`
	JitterRatio float64 `json:"jitter_ratio"`
}

// BreakerPolicy configures the resilient executor's circuit breaker.
type BreakerPolicy struct {
	FailureThreshold int `json:"failure_threshold"`
	CooldownMs       int `json:"cooldown_ms"`
}

// ResiliencePolicy is immutable per executor instance.
type ResiliencePolicy struct {
	Retry   RetryPolicy   `json:"retry"`
	Breaker BreakerPolicy `json:"circuit_breaker"`
}

// OpMetrics is a read-only snapshot of a named operation's health.
type OpMetrics struct {
	Op                  string `json:"op"`
	Totals              int64  `json:"totals"`
	Successes           int64  `json:"successes"`
	Failures            int64  `json:"failures"`
	Retries             int64  `json:"retries"`
	CircuitOpenEvents   int64  `json:"circuit_open_events"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
	StartedAt           int64  `json:"started_at,omitempty"`
	SucceededAt         int64  `json:"succeeded_at,omitempty"`
	FailedAt            int64  `json:"failed_at,omitempty"`
	CircuitOpen         bool   `json:"circuit_open"`
}

// --- Scheduler domain types ---

// RecurringReminder fires every IntervalMinutes while Enabled.
type RecurringReminder struct {
	ID              string `json:"id"`
	Prompt          string `json:"prompt"`
	IntervalMinutes int    `json:"interval_minutes"`
	Lane            Lane   `json:"lane"`
	Enabled         bool   `json:"enabled"`
}

// OneTimeReminder fires once at RunAtMs.
type OneTimeReminder struct {
	ID      string `json:"id"`
	Prompt  string `json:"prompt"`
	RunAtMs int64  `json:"run_at_ms"`
	Lane    Lane   `json:"lane"`
	Enabled bool   `json:"enabled"`
}

// HeartbeatConfig is a singleton reminder synthesized into the recurring
// set under id "self-heartbeat" when Enabled.
type HeartbeatConfig struct {
	Enabled         bool   `json:"enabled"`
	IntervalMinutes int    `json:"interval_minutes"`
	Prompt          string `json:"prompt"`
}

const heartbeatReminderID = "self-heartbeat"

// SchedulerState is the full persisted scheduler snapshot.
type SchedulerState struct {
	NextRunByID      map[string]int64  `json:"nextRunById"`
	OneTimeReminders []OneTimeReminder `json:"oneTimeReminders"`
	Heartbeat        HeartbeatConfig   `json:"heartbeat"`
	UpdatedAt        string            `json:"updatedAt"`
}

// --- Goal domain types (memory manager) ---

// GoalStatus is the lifecycle state of a GoalRecord.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
	GoalCancelled GoalStatus = "cancelled"
)

const maxGoalTags = 12
const maxGoalProgress = 24

// ProgressSource identifies who authored a GoalProgress entry.
type ProgressSource string

const (
	ProgressUser      ProgressSource = "user"
	ProgressAssistant ProgressSource = "assistant"
	ProgressSystem    ProgressSource = "system"
)

// GoalProgress is one timestamped note on a GoalRecord's bounded log.
type GoalProgress struct {
	At     string         `json:"at"`
	Source ProgressSource `json:"source"`
	Note   string         `json:"note"`
}

// GoalRecord is a persistent mission with a bounded progress log.
type GoalRecord struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Status    GoalStatus     `json:"status"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Tags      []string       `json:"tags,omitempty"`
	Progress  []GoalProgress `json:"progress"`
}

// --- Intent classification (deterministic router) ---

// Intent names a high-confidence, tool-routable user intent.
type Intent int

const (
	IntentNone Intent = iota
	IntentDateTime
	IntentWalletAddress
	IntentWalletBalance
	IntentSchedulerVerb
	IntentSocialVerb
)

// --- LLM protocol types (external interface) ---

type ChatMessage struct {
	Role        string          `json:"role"` // "system", "user", "assistant", "tool"
	Content     string          `json:"content"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	ToolCalls   []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID  string          `json:"tool_call_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Attachment represents binary content sent inline to a multimodal LLM.
type Attachment struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

type ToolCall struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// ResponseSchema tells the provider to enforce structured JSON output.
type ResponseSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type ChatRequest struct {
	Messages       []ChatMessage    `json:"messages"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ResponseSchema *ResponseSchema  `json:"response_schema,omitempty"`
	Temperature    float64          `json:"temperature,omitempty"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
}

type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}
