package agentcore

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// ResilientExecutor is the interface AgentLoop and Scheduler depend on.
// *Executor satisfies it directly; observer.ObservedExecutor wraps an
// *Executor and satisfies it too, so OTEL instrumentation can sit in
// front of every op without the core package importing OTEL.
type ResilientExecutor interface {
	Execute(op string, fn func() error) error
	Metrics(op string) OpMetrics
}

// Executor runs named operations under a shared resilience policy:
// exponential backoff with jitter on transient failure, and a per-op
// circuit breaker that short-circuits calls while an op is unhealthy.
//
// One Executor instance is shared across the runtime; ops are keyed by
// name (e.g. "agent:chat_completion_stream", "scheduler:<id>") so each
// gets its own breaker state and metrics.
type Executor struct {
	policy ResiliencePolicy
	logger *slog.Logger

	mu    sync.Mutex
	state map[string]*opState
}

// opState is the mutable breaker/metrics state for one named op.
type opState struct {
	consecutiveFailures int
	openUntil           int64 // unix ms; 0 or past = closed
	totals              int64
	successes           int64
	failures            int64
	retries             int64
	circuitOpenEvents   int64
	lastError           string
	startedAt           int64
	succeededAt         int64
	failedAt            int64
}

// NewExecutor builds an Executor under the given policy. A nil logger
// is replaced with a discard logger.
func NewExecutor(policy ResiliencePolicy, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = nopLogger
	}
	return &Executor{
		policy: policy,
		logger: logger,
		state:  make(map[string]*opState),
	}
}

// Execute runs fn under op's resilience policy: retries transient
// failures with jittered exponential backoff, and trips the circuit
// breaker after consecutiveFailures reaches the policy's threshold.
func (e *Executor) Execute(op string, fn func() error) error {
	st := e.stateFor(op)

	now := nowMs()
	e.mu.Lock()
	open := st.openUntil > now
	e.mu.Unlock()
	if open {
		return &ErrCircuitOpen{Op: op, OpenUntilMs: st.openUntil}
	}

	e.mu.Lock()
	st.totals++
	st.startedAt = now
	e.mu.Unlock()

	retry := e.policy.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			e.recordSuccess(op, st)
			return nil
		}
		if attempt < retry.MaxAttempts {
			e.mu.Lock()
			st.retries++
			e.mu.Unlock()
			e.logger.Warn("executor retrying", "op", op, "attempt", attempt, "err", lastErr)
			time.Sleep(backoffDelay(retry, attempt))
		}
	}

	e.recordFailure(op, st, lastErr)
	return lastErr
}

// recordSuccess clears the failure streak and closes the circuit.
func (e *Executor) recordSuccess(op string, st *opState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st.consecutiveFailures = 0
	st.openUntil = 0
	st.successes++
	st.succeededAt = nowMs()
}

// recordFailure advances the failure streak and, once it reaches the
// breaker's threshold, opens the circuit for cooldownMs.
func (e *Executor) recordFailure(op string, st *opState, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st.failures++
	st.failedAt = nowMs()
	st.lastError = err.Error()
	st.consecutiveFailures++

	threshold := e.policy.Breaker.FailureThreshold
	if threshold > 0 && st.consecutiveFailures >= threshold {
		st.openUntil = nowMs() + int64(e.policy.Breaker.CooldownMs)
		st.consecutiveFailures = 0
		st.circuitOpenEvents++
		e.logger.Warn("circuit opened", "op", op, "cooldown_ms", e.policy.Breaker.CooldownMs)
	}
}

// Metrics returns a read-only snapshot of op's health counters.
func (e *Executor) Metrics(op string) OpMetrics {
	st := e.stateFor(op)
	e.mu.Lock()
	defer e.mu.Unlock()
	return OpMetrics{
		Op:                  op,
		Totals:              st.totals,
		Successes:           st.successes,
		Failures:            st.failures,
		Retries:             st.retries,
		CircuitOpenEvents:   st.circuitOpenEvents,
		ConsecutiveFailures: st.consecutiveFailures,
		LastError:           st.lastError,
		StartedAt:           st.startedAt,
		SucceededAt:         st.succeededAt,
		FailedAt:            st.failedAt,
		CircuitOpen:         st.openUntil > nowMs(),
	}
}

func (e *Executor) stateFor(op string) *opState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.state[op]
	if !ok {
		st = &opState{}
		e.state[op] = st
	}
	return st
}

// backoffDelay computes the jittered exponential delay before the
// given attempt (1-indexed attempt that just failed).
func backoffDelay(p RetryPolicy, attempt int) time.Duration {
	base := p.BaseDelayMs
	if base <= 0 {
		base = 500
	}
	max := p.MaxDelayMs
	if max <= 0 {
		max = 30_000
	}
	// JitterRatio has no arithmetic default: an explicit 0 must produce
	// zero jitter. Callers that want the 0.2 default apply it at policy
	// construction time (internal/config.Default does this).
	jitterRatio := p.JitterRatio

	exp := base << (attempt - 1) // base * 2^(attempt-1)
	if exp > max || exp <= 0 {
		exp = max
	}
	jitterSpan := float64(exp) * jitterRatio
	jitter := (rand.Float64()*2 - 1) * jitterSpan // ±jitterRatio uniform
	delay := float64(exp) + jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay) * time.Millisecond
}

func nowMs() int64 { return time.Now().UnixMilli() }

// IsCircuitOpen reports whether err is an ErrCircuitOpen.
func IsCircuitOpen(err error) bool {
	var e *ErrCircuitOpen
	return errors.As(err, &e)
}
