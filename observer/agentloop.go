package observer

import (
	"context"
	"time"

	oasis "github.com/lattice-run/agentcore"

	"go.opentelemetry.io/otel/codes"
	oasislog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

// ObservedAgentLoop wraps an AgentLoop with OTEL instrumentation around
// each RunAgent turn.
type ObservedAgentLoop struct {
	inner *oasis.AgentLoop
	inst  *Instruments
}

// WrapAgentLoop returns an instrumented AgentLoop that emits a turn span,
// turn counter, and turn duration histogram per RunAgent call.
func WrapAgentLoop(inner *oasis.AgentLoop, inst *Instruments) *ObservedAgentLoop {
	return &ObservedAgentLoop{inner: inner, inst: inst}
}

func (o *ObservedAgentLoop) RunAgent(ctx context.Context, userText string, history []oasis.ChatMessage, opts oasis.RunAgentOptions) (oasis.RunAgentResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "agent.turn")
	defer span.End()
	start := time.Now()

	result, err := o.inner.RunAgent(ctx, userText, history, opts)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrTurnStatus.String(status),
		AttrTurnTokenMode.String(result.TokenMode),
		AttrTokensInput.Int(result.Usage.InputTokens),
		AttrTokensOutput.Int(result.Usage.OutputTokens),
	)

	o.inst.TurnExecutions.Add(ctx, 1, metric.WithAttributes(AttrTurnStatus.String(status)))
	o.inst.TurnDuration.Record(ctx, durationMs, metric.WithAttributes(AttrTurnStatus.String(status)))

	var rec oasislog.Record
	rec.SetSeverity(oasislog.SeverityInfo)
	rec.SetBody(oasislog.StringValue("agent turn completed"))
	rec.AddAttributes(
		oasislog.String("agent.turn.status", status),
		oasislog.String("agent.turn.token_mode", result.TokenMode),
		oasislog.Int("llm.tokens.input", result.Usage.InputTokens),
		oasislog.Int("llm.tokens.output", result.Usage.OutputTokens),
		oasislog.Float64("agent.turn.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}
