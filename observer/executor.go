package observer

import (
	"context"
	"time"

	oasis "github.com/lattice-run/agentcore"

	"go.opentelemetry.io/otel/metric"
)

// ObservedExecutor wraps an Executor, additionally reporting circuit
// state, retries, and attempt latency into an OTEL meter per op. The
// executor's own retry/breaker behavior is untouched; this only
// samples OpMetrics before and after each call to derive deltas.
type ObservedExecutor struct {
	inner *oasis.Executor
	inst  *Instruments
}

// WrapExecutor returns an instrumented Executor.
func WrapExecutor(inner *oasis.Executor, inst *Instruments) *ObservedExecutor {
	return &ObservedExecutor{inner: inner, inst: inst}
}

// Execute runs fn through the wrapped Executor, recording attempt
// latency and circuit/retry deltas against op.
func (e *ObservedExecutor) Execute(op string, fn func() error) error {
	before := e.inner.Metrics(op)
	start := time.Now()

	err := e.inner.Execute(op, fn)

	durationMs := float64(time.Since(start).Milliseconds())
	after := e.inner.Metrics(op)

	ctx := context.Background()
	attrs := metric.WithAttributes(AttrOpName.String(op))
	e.inst.ExecutorDuration.Record(ctx, durationMs, attrs)

	if after.Retries > before.Retries {
		e.inst.ExecutorRetries.Add(ctx, after.Retries-before.Retries, attrs)
	}

	circuitDelta := int64(0)
	if after.CircuitOpen && !before.CircuitOpen {
		circuitDelta = 1
	} else if !after.CircuitOpen && before.CircuitOpen {
		circuitDelta = -1
	}
	if circuitDelta != 0 {
		e.inst.ExecutorCircuitOpen.Add(ctx, circuitDelta, attrs)
	}

	return err
}

// Metrics delegates to the wrapped Executor's in-memory snapshot.
func (e *ObservedExecutor) Metrics(op string) oasis.OpMetrics {
	return e.inner.Metrics(op)
}
