package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"
)

// PlanningMode governs whether runAgent generates an execution plan
// before the tool loop.
type PlanningMode string

const (
	PlanFast       PlanningMode = "fast"
	PlanAuto       PlanningMode = "auto"
	PlanAutonomous PlanningMode = "autonomous"
)

var planSignalPattern = regexp.MustCompile(`(?i)\b(step[s]? by step|plan (?:this|out)|break (?:this|it) down|multi-step|walk me through)\b`)

// Plan is the structured output of the planning LLM call.
type Plan struct {
	Goal               string   `json:"goal"`
	Steps              []string `json:"steps"`
	CompletionCriteria []string `json:"completion_criteria"`
	Done               []bool   `json:"-"`
}

func (p *Plan) valid() bool {
	return p != nil && p.Goal != "" && len(p.Steps) >= 3 && len(p.Steps) <= 6 && len(p.CompletionCriteria) <= 6
}

// footer renders the plan's per-step [done]/[pending] status list.
func (p *Plan) footer() string {
	if p == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nPlan status:\n")
	for i, s := range p.Steps {
		mark := "[pending]"
		if i < len(p.Done) && p.Done[i] {
			mark = "[done]"
		}
		fmt.Fprintf(&sb, "%s %s\n", mark, s)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// AgentLoopConfig carries the runtime options the agent loop draws
// from configuration: model identity is the provider's concern, this
// struct only holds what the loop itself needs.
type AgentLoopConfig struct {
	ContextWindow int
	MaxToolIter   int
	Planning      PlanningMode
	BasePersona   string
}

func (c AgentLoopConfig) compactionThreshold() int {
	if c.ContextWindow <= 0 {
		return 0
	}
	return int(float64(c.ContextWindow) * 0.9)
}

// AgentLoop is the single-agent tool-calling runtime: deterministic
// router, skill/plan assembly, streaming tool loop, and post-hoc
// integrity guards, all wrapped by the shared resilient executor.
type AgentLoop struct {
	provider  Provider
	tools     *ToolRegistry
	executor  ResilientExecutor
	memory    *MemoryManager
	preGuards *ProcessorChain
	guards    []integrityGuard
	skills    *SkillCatalogue
	tracer    Tracer
	logger    *slog.Logger
	cfg       AgentLoopConfig
}

// NewAgentLoop wires the agent loop's dependencies. A nil logger falls
// back to the package discard logger; a nil tracer disables spans.
func NewAgentLoop(provider Provider, tools *ToolRegistry, executor ResilientExecutor, memory *MemoryManager, preGuards *ProcessorChain, skills *SkillCatalogue, tracer Tracer, logger *slog.Logger, cfg AgentLoopConfig) *AgentLoop {
	if logger == nil {
		logger = nopLogger
	}
	if preGuards == nil {
		preGuards = NewProcessorChain()
	}
	if cfg.MaxToolIter <= 0 {
		cfg.MaxToolIter = 12
	}
	return &AgentLoop{
		provider:  provider,
		tools:     tools,
		executor:  executor,
		memory:    memory,
		preGuards: preGuards,
		guards:    defaultIntegrityGuards(),
		skills:    skills,
		tracer:    tracer,
		logger:    logger,
		cfg:       cfg,
	}
}

// RunAgentResult is runAgent's output contract: {reply, history',
// tokenUsage}, plus the token-estimation mode used for step 1.
type RunAgentResult struct {
	Reply     string
	History   []ChatMessage
	Usage     Usage
	TokenMode string
}

// RunAgentOptions carries runAgent's optional onToken callback.
type RunAgentOptions struct {
	OnToken func(string)
}

// estimateTokens applies the deterministic fallback token counter:
// ceil(len/3.5). This repo carries no BPE encoder dependency, so the
// mode is always "estimate" (see DESIGN.md's Open Question decision).
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len(s)) / 3.5))
}

func estimateMessagesTokens(messages []ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content)
	}
	return total
}

// RunAgent implements the full agent-loop contract: compaction check,
// deterministic routing, skill/plan assembly, system-prompt build, the
// streaming tool loop, integrity guards, and the turn epilogue.
func (a *AgentLoop) RunAgent(ctx context.Context, userText string, history []ChatMessage, opts RunAgentOptions) (RunAgentResult, error) {
	tokenMode := "estimate"

	// Step 1 — compaction check.
	systemEstimate := estimateTokens(a.cfg.BasePersona)
	contextTokens := systemEstimate + estimateMessagesTokens(history) + estimateTokens(userText)
	if threshold := a.cfg.compactionThreshold(); threshold > 0 && contextTokens >= threshold {
		if a.memory != nil {
			if err := a.memory.FlushBeforeCompaction(ctx, history); err != nil {
				a.logger.Warn("flush before compaction failed", "error", err)
			}
		}
		if len(history) > 10 {
			history = history[len(history)-10:]
		}
	}

	// Step 2 — deterministic router, before any LLM call.
	if a.tools != nil || classifyIntent(userText) == IntentDateTime {
		if reply, intent, ok := routeDeterministic(ctx, a.tools, userText); ok {
			a.logger.Info("deterministic route matched", "intent", intent)
			return a.epilogue(ctx, userText, reply, history, Usage{}, tokenMode)
		}
	}

	// Step 3 — skill + plan assembly.
	var skill *Skill
	if a.skills != nil {
		skill, _ = a.skills.Match(userText)
	}
	plan := a.maybeGeneratePlan(ctx, userText)

	// Step 4 — system prompt build.
	systemPrompt := a.buildSystemPrompt(ctx, userText, skill, plan)

	messages := append([]ChatMessage{SystemMessage(systemPrompt)}, history...)
	messages = append(messages, UserMessage(userText))

	toolsCalled := make(map[string]bool)
	var totalUsage Usage
	var draft string
	retries := 0
	toolRounds := 0

	for {
		if toolRounds >= a.cfg.MaxToolIter {
			a.logger.Warn("max tool iterations reached, forcing synthesis", "iterations", toolRounds)
			messages = append(messages, UserMessage("You have used all available tool calls. Summarize what you found and respond to the user."))
			resp, err := a.provider.Chat(ctx, ChatRequest{Messages: messages})
			if err != nil {
				return RunAgentResult{}, err
			}
			totalUsage.InputTokens += resp.Usage.InputTokens
			totalUsage.OutputTokens += resp.Usage.OutputTokens
			draft = resp.Content
			break
		}

		reply, usage, err := a.streamOnce(ctx, messages, opts.OnToken, toolsCalled)
		if err != nil {
			var halt *ErrHalt
			if errors.As(err, &halt) {
				return a.epilogue(ctx, userText, halt.Response, history, totalUsage, tokenMode)
			}
			return RunAgentResult{}, err
		}
		totalUsage.InputTokens += usage.InputTokens
		totalUsage.OutputTokens += usage.OutputTokens
		messages = reply.messages
		if !reply.hasFinal {
			toolRounds++
			continue // more tool-call rounds queued by streamOnce
		}
		draft = reply.final

		// Step 6 — integrity guards.
		st := &guardState{UserText: userText, Draft: draft, ToolsCalled: toolsCalled, Plan: plan}
		for _, g := range a.guards {
			if err := g(ctx, a, st); err != nil {
				a.logger.Warn("integrity guard error", "error", err)
			}
		}
		draft = st.Draft

		if st.RetryLoop && retries < 2 {
			retries++
			messages = append(messages, UserMessage(st.RetryPrompt))
			continue
		}
		break
	}

	if plan.valid() {
		draft += plan.footer()
	}

	return a.epilogue(ctx, userText, draft, history, totalUsage, tokenMode)
}

// streamResult is the outcome of one full streaming round: either a
// final assistant turn (hasFinal) or an updated message list primed
// for another round because tool calls were dispatched.
type streamResult struct {
	messages []ChatMessage
	hasFinal bool
	final    string
}

// streamOnce sends one streaming completion request wrapped by the
// resilient executor under "agent:chat_completion_stream", then
// either appends tool results and signals another round, or returns
// the final reply.
func (a *AgentLoop) streamOnce(ctx context.Context, messages []ChatMessage, onToken func(string), toolsCalled map[string]bool) (streamResult, Usage, error) {
	var resp ChatResponse
	ch := make(chan StreamChunk, 16)

	iterCtx := ctx
	var span Span
	if a.tracer != nil {
		iterCtx, span = a.tracer.Start(ctx, "agent.loop.iteration", IntAttr("tools_called", len(toolsCalled)))
		defer span.End()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range ch {
			if chunk.Content != "" && onToken != nil {
				onToken(chunk.Content)
			}
		}
	}()

	var toolDefs []ToolDefinition
	if a.tools != nil {
		toolDefs = a.tools.AllDefinitions()
	}
	req := ChatRequest{Messages: messages, Tools: toolDefs}

	if err := a.preGuards.RunPreLLM(iterCtx, &req); err != nil {
		close(ch)
		<-done
		if span != nil {
			span.Error(err)
		}
		return streamResult{}, Usage{}, err
	}

	err := a.executor.Execute("agent:chat_completion_stream", func() error {
		var callErr error
		resp, callErr = a.provider.ChatStream(iterCtx, req, ch)
		return callErr
	})
	<-done

	if err != nil {
		if span != nil {
			span.Error(err)
		}
		return streamResult{}, Usage{}, &ErrLLMUnavailable{Cause: err}
	}

	if err := a.preGuards.RunPostLLM(iterCtx, &resp); err != nil {
		return streamResult{}, Usage{}, err
	}

	if len(resp.ToolCalls) == 0 {
		return streamResult{hasFinal: true, final: resp.Content}, resp.Usage, nil
	}

	messages = append(messages, ChatMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
	results := a.dispatchToolCalls(iterCtx, resp.ToolCalls)
	for i, tc := range resp.ToolCalls {
		toolsCalled[tc.Name] = true
		result := ToolResult{Content: results[i]}
		if err := a.preGuards.RunPostTool(iterCtx, tc, &result); err != nil {
			return streamResult{}, Usage{}, err
		}
		content := result.Content
		if len([]rune(content)) > maxToolResultMessageLen {
			content = truncateStr(content, maxToolResultMessageLen) + "\n\n[output truncated]"
		}
		messages = append(messages, ToolResultMessage(tc.ID, content))
	}
	return streamResult{messages: messages}, resp.Usage, nil
}

// dispatchToolCalls runs each tool call concurrently against the
// registry, bounded to maxParallelToolDispatch workers, and returns
// results in call order — a single-agent analogue of a parallel
// dispatcher, without the agent-delegation and attachment
// bookkeeping a multi-agent network needs.
func (a *AgentLoop) dispatchToolCalls(ctx context.Context, calls []ToolCall) []string {
	results := make([]string, len(calls))
	if len(calls) == 1 {
		results[0] = a.execOneTool(ctx, calls[0])
		return results
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallelToolDispatch)
	for i, tc := range calls {
		wg.Add(1)
		go func(i int, tc ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = a.execOneTool(ctx, tc)
		}(i, tc)
	}
	wg.Wait()
	return results
}

const maxParallelToolDispatch = 10
const maxToolResultMessageLen = 100_000

func (a *AgentLoop) execOneTool(ctx context.Context, tc ToolCall) (out string) {
	defer func() {
		if p := recover(); p != nil {
			out = fmt.Sprintf("error: tool %q panicked: %v", tc.Name, p)
		}
	}()
	if a.tools == nil {
		return fmt.Sprintf("error: no tools registered for %s", tc.Name)
	}
	result, err := a.tools.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		return "error: " + err.Error()
	}
	if result.Error != "" {
		return "error: " + result.Error
	}
	return result.Content
}

// maybeGeneratePlan runs step 3's plan generation according to the
// configured planning mode.
func (a *AgentLoop) maybeGeneratePlan(ctx context.Context, userText string) *Plan {
	switch a.cfg.Planning {
	case PlanFast:
		return nil
	case PlanAutonomous:
		// always plan
	default: // PlanAuto
		if !planSignalPattern.MatchString(userText) {
			return nil
		}
	}
	return a.generatePlan(ctx, userText)
}

const planSchemaJSON = `{"type":"object","properties":{"goal":{"type":"string"},"steps":{"type":"array","items":{"type":"string"}},"completion_criteria":{"type":"array","items":{"type":"string"}}},"required":["goal","steps","completion_criteria"]}`

// generatePlan issues the separate planning LLM call and parses its
// JSON response. Invalid JSON or a structurally invalid plan yields no
// plan rather than failing the turn.
func (a *AgentLoop) generatePlan(ctx context.Context, userText string) *Plan {
	resp, err := a.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage("Produce a short execution plan as JSON: {goal, steps[3..6], completion_criteria[<=6]}. Respond with JSON only."),
			UserMessage(userText),
		},
		ResponseSchema: &ResponseSchema{Name: "plan", Schema: json.RawMessage(planSchemaJSON)},
	})
	if err != nil {
		a.logger.Warn("plan generation failed", "error", err)
		return nil
	}
	var plan Plan
	if err := json.Unmarshal([]byte(resp.Content), &plan); err != nil {
		return nil
	}
	if !plan.valid() {
		return nil
	}
	plan.Done = make([]bool, len(plan.Steps))
	return &plan
}

// buildSystemPrompt assembles step 4's concatenation: base persona,
// runtime time context, bootstrap memory context, skill catalogue,
// selected skill body, execution plan, and a tool-routing hint.
func (a *AgentLoop) buildSystemPrompt(ctx context.Context, userText string, skill *Skill, plan *Plan) string {
	var sb strings.Builder
	sb.WriteString(a.cfg.BasePersona)
	sb.WriteString("\n\n")
	sb.WriteString(currentTimeContext())

	if a.memory != nil {
		if mem, err := a.memory.BootstrapContext(ctx); err == nil && mem != "" {
			sb.WriteString("\n\n")
			sb.WriteString(mem)
		}
	}

	if a.skills != nil {
		if catalogue := a.skills.Catalogue(); catalogue != "" {
			sb.WriteString("\n\n=== AVAILABLE SKILLS ===\n")
			sb.WriteString(catalogue)
		}
	}
	if skill != nil {
		sb.WriteString("\n\n=== ACTIVE SKILL: " + skill.Name + " ===\n")
		sb.WriteString(skill.Body)
	}
	if plan.valid() {
		sb.WriteString("\n\n=== EXECUTION PLAN ===\nGoal: " + plan.Goal + "\n")
		for i, s := range plan.Steps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
		}
	}
	if hint := toolRoutingHint(userText); hint != "" {
		sb.WriteString("\n\n" + hint)
	}
	return sb.String()
}

// toolRoutingHint nudges the model toward the tool family the user
// text most plausibly needs, without forcing a call.
func toolRoutingHint(userText string) string {
	switch classifyIntent(userText) {
	case IntentWalletAddress, IntentWalletBalance:
		return "Hint: this turn likely needs a wallet tool call."
	case IntentSchedulerVerb:
		return "Hint: this turn likely needs a scheduler tool call."
	case IntentSocialVerb:
		return "Hint: this turn likely needs the social-network tool."
	}
	return ""
}

// epilogue implements step 7: fire deterministic extraction
// asynchronously and assemble the final result. No per-turn episodic
// entry is written here; ExtractTurn appends an episodic summary line
// only every extractEveryNTurns turns. The returned history is the caller-supplied history plus
// this turn's user/assistant pair; intermediate tool-call messages are
// not persisted into it.
func (a *AgentLoop) epilogue(ctx context.Context, userText, reply string, history []ChatMessage, usage Usage, tokenMode string) (RunAgentResult, error) {
	newHistory := append(append([]ChatMessage{}, history...), UserMessage(userText), AssistantMessage(reply))

	if a.memory != nil {
		go func() {
			extractCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			a.memory.ExtractTurn(extractCtx, userText, reply)
		}()
	}

	return RunAgentResult{Reply: reply, History: newHistory, Usage: usage, TokenMode: tokenMode}, nil
}
