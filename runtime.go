package agentcore

import (
	"context"
	"errors"
	"log/slog"
)

// agentRunner is the minimal surface Runtime needs from an agent loop.
// *AgentLoop satisfies it directly. An OTEL-instrumented decorator
// built in package observer (which imports this package and so cannot
// be referenced here by name) satisfies it structurally too, which is
// why WithAgentRunner takes this interface instead of *AgentLoop.
type agentRunner interface {
	RunAgent(ctx context.Context, userText string, history []ChatMessage, opts RunAgentOptions) (RunAgentResult, error)
}

// Runtime is the single constructed root of the process: one
// ResilientExecutor, one lane queue, one scheduler, one agent loop,
// one tool registry, one event bus, wired together at startup. There
// are no package-level singletons (Design Notes, "Singletons ->
// constructed roots").
type Runtime struct {
	logger *slog.Logger

	provider  Provider
	executor  ResilientExecutor
	tools     *ToolRegistry
	memory    *MemoryManager
	skills    *SkillCatalogue
	preGuards *ProcessorChain
	tracer    Tracer
	loopCfg   AgentLoopConfig
	loop      agentRunner

	bus   *EventBus
	lanes *laneQueue

	scheduler            *Scheduler
	schedulerStatePath   string
	schedulerTickSeconds int
	reminders            []RecurringReminder
	heartbeat            HeartbeatConfig
}

// Option configures a Runtime under construction.
type Option func(*Runtime)

func WithLogger(l *slog.Logger) Option        { return func(r *Runtime) { r.logger = l } }
func WithProvider(p Provider) Option          { return func(r *Runtime) { r.provider = p } }
func WithExecutor(e ResilientExecutor) Option { return func(r *Runtime) { r.executor = e } }
func WithToolRegistry(t *ToolRegistry) Option { return func(r *Runtime) { r.tools = t } }
func WithMemory(m *MemoryManager) Option      { return func(r *Runtime) { r.memory = m } }
func WithSkills(s *SkillCatalogue) Option     { return func(r *Runtime) { r.skills = s } }
func WithPreGuards(c *ProcessorChain) Option  { return func(r *Runtime) { r.preGuards = c } }
func WithTracer(t Tracer) Option              { return func(r *Runtime) { r.tracer = t } }
func WithEventBus(b *EventBus) Option         { return func(r *Runtime) { r.bus = b } }

func WithAgentLoopConfig(cfg AgentLoopConfig) Option {
	return func(r *Runtime) { r.loopCfg = cfg }
}

// WithAgentRunner overrides the agent loop entirely. Set this when the
// caller has already wrapped a *AgentLoop in an OTEL-instrumented
// decorator; the provider/tools/memory/preGuards/skills/tracer/
// loop-config options above are then ignored for loop construction.
func WithAgentRunner(a agentRunner) Option {
	return func(r *Runtime) { r.loop = a }
}

// WithSchedulerState sets the scheduler's persisted-state path and
// tick interval. tickSeconds <= 0 falls back to the scheduler's own
// default.
func WithSchedulerState(path string, tickSeconds int) Option {
	return func(r *Runtime) {
		r.schedulerStatePath = path
		r.schedulerTickSeconds = tickSeconds
	}
}

func WithReminders(reminders []RecurringReminder) Option {
	return func(r *Runtime) { r.reminders = reminders }
}

func WithHeartbeat(hb HeartbeatConfig) Option {
	return func(r *Runtime) { r.heartbeat = hb }
}

// New constructs the Runtime: wires the tool registry to the event
// bus, builds the agent loop if one wasn't supplied directly via
// WithAgentRunner, and starts the lane queue's per-lane dispatcher
// goroutines. The scheduler's tick loop does not start until Start is
// called.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		schedulerStatePath:   "scheduler_state.json",
		schedulerTickSeconds: defaultTickSeconds,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	if r.executor == nil {
		r.executor = NewExecutor(ResiliencePolicy{}, r.logger)
	}
	if r.tools == nil {
		r.tools = NewToolRegistry()
	}
	if r.bus == nil {
		r.bus = NewEventBus()
	}
	r.tools.SetEventBus(r.bus)
	if r.preGuards == nil {
		r.preGuards = NewProcessorChain()
	}
	if r.loop == nil {
		r.loop = NewAgentLoop(r.provider, r.tools, r.executor, r.memory, r.preGuards, r.skills, r.tracer, r.logger, r.loopCfg)
	}

	r.lanes = NewLaneQueue(r.logger)
	r.scheduler = NewScheduler(r.schedulerStatePath, r.schedulerTickSeconds, r.reminders, r.heartbeat, r.submitScheduled, r.executor, r.logger)
	return r
}

// Tools returns the runtime's tool registry. cmd/agentd registers the
// built-in tool packages against it before constructing the Runtime
// (those packages import this one, so this package can never construct
// them itself).
func (r *Runtime) Tools() *ToolRegistry { return r.tools }

// Scheduler returns the runtime's scheduler, e.g. so tools/scheduler
// can wrap its reminder CRUD operations.
func (r *Runtime) Scheduler() *Scheduler { return r.scheduler }

// EventBus returns the runtime's event bus, e.g. for an SSE front-end
// subscriber.
func (r *Runtime) EventBus() *EventBus { return r.bus }

// LaneCounters reports a lane's current running/queued counts, e.g.
// for a status probe. laneQueue itself is unexported so this is the
// only way an external package can read it.
func (r *Runtime) LaneCounters(lane Lane) (pending, queued int64) {
	return r.lanes.Counters(lane)
}

// Start begins the scheduler's tick loop. The lane queue's dispatchers
// are already running from New.
func (r *Runtime) Start(ctx context.Context) {
	r.scheduler.Start(ctx)
}

// Stop halts the scheduler's tick loop, then the lane queue's
// dispatcher goroutines, so no new work is admitted mid-drain.
func (r *Runtime) Stop() {
	r.scheduler.Stop()
	r.lanes.Stop()
}

// Submit enqueues one turn on the named lane and returns a channel
// that receives its TaskResult once the agent loop finishes. This is
// the single entrypoint both the HTTP front-end and the scheduler's
// reminder firings go through (§2, "scheduler ticks produce synthetic
// user turns through the same path").
func (r *Runtime) Submit(ctx context.Context, lane Lane, id, userText string, history []ChatMessage) <-chan TaskResult {
	return r.SubmitStream(ctx, lane, id, userText, history, nil)
}

// SubmitStream is Submit plus a token callback, for a front-end that
// wants to relay the draft reply as it streams (e.g. over SSE).
// onToken may be nil, in which case it behaves exactly like Submit.
func (r *Runtime) SubmitStream(ctx context.Context, lane Lane, id, userText string, history []ChatMessage, onToken func(string)) <-chan TaskResult {
	return r.lanes.Submit(lane, id, func() TaskResult {
		started := nowMs()
		result, err := r.loop.RunAgent(ctx, userText, history, RunAgentOptions{OnToken: onToken})
		completed := nowMs()
		if err != nil {
			return TaskResult{
				ID: id, Lane: lane, Status: StatusFailed,
				Error: err.Error(), StartedAt: started, CompletedAt: completed,
			}
		}
		return TaskResult{
			ID: id, Lane: lane, Reply: result.Reply, History: result.History,
			Status: StatusCompleted, StartedAt: started, CompletedAt: completed,
		}
	})
}

// submitScheduled is the Scheduler's SubmitFunc: a due reminder's
// prompt goes through Submit exactly like a user turn, on the
// reminder's configured lane, and the scheduler blocks on the result.
func (r *Runtime) submitScheduled(ctx context.Context, run scheduledRun) (string, error) {
	resultC := r.Submit(ctx, run.lane, run.id, run.prompt, r.scheduler.History())
	select {
	case res := <-resultC:
		if res.Status == StatusFailed {
			return "", errors.New(res.Error)
		}
		return res.Reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
