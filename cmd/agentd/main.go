package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	oasis "github.com/lattice-run/agentcore"
	"github.com/lattice-run/agentcore/frontend/httpapi"
	"github.com/lattice-run/agentcore/internal/config"
	"github.com/lattice-run/agentcore/observer"
	"github.com/lattice-run/agentcore/provider/openaicompat"
	"github.com/lattice-run/agentcore/tools/memorytools"
	schedulertool "github.com/lattice-run/agentcore/tools/scheduler"
	"github.com/lattice-run/agentcore/tools/search"
	"github.com/lattice-run/agentcore/tools/social"
	"github.com/lattice-run/agentcore/tools/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load(os.Getenv("AGENTD_CONFIG"))
	if cfg.LLM.APIKey == "" {
		logger.Error("AGENTD_LLM_API_KEY is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var provider oasis.Provider = openaicompat.NewProvider(
		cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		openaicompat.WithName(cfg.LLM.Provider),
	)

	var inst *observer.Instruments
	var shutdownObserver func(context.Context) error
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		instruments, shutdown, err := observer.Init(ctx, pricing)
		if err != nil {
			logger.Error("observer init failed", "err", err)
			os.Exit(1)
		}
		inst, shutdownObserver = instruments, shutdown
		provider = observer.WrapProvider(provider, cfg.LLM.Model, inst)
	}

	memory := oasis.NewMemoryManager(cfg.Memory.BaseDir, provider, logger)

	skills, err := oasis.LoadSkillCatalogue(cfg.Agent.SkillsDir)
	if err != nil {
		logger.Error("skill catalogue load failed", "err", err)
		os.Exit(1)
	}

	tools := oasis.NewToolRegistry()
	if cfg.Wallet.Address != "" {
		tools.Add(wallet.New(cfg.Wallet.Address, cfg.Wallet.RPCURL))
	}
	if cfg.Search.APIKey != "" {
		tools.Add(search.New(cfg.Search.APIKey, cfg.Search.Model))
	}
	if cfg.Social.WebhookURL != "" {
		tools.Add(social.New(cfg.Social.WebhookURL, cfg.Social.APIKey))
	}
	tools.Add(memorytools.New(memory))

	policy := oasis.ResiliencePolicy{
		Retry: oasis.RetryPolicy{
			MaxAttempts: cfg.Executor.MaxAttempts,
			BaseDelayMs: cfg.Executor.BaseDelayMs,
			MaxDelayMs:  cfg.Executor.MaxDelayMs,
			JitterRatio: cfg.Executor.JitterRatio,
		},
		Breaker: oasis.BreakerPolicy{
			FailureThreshold: cfg.Executor.FailureThreshold,
			CooldownMs:       cfg.Executor.CooldownMs,
		},
	}
	baseExecutor := oasis.NewExecutor(policy, logger)
	var executor oasis.ResilientExecutor = baseExecutor
	if inst != nil {
		executor = observer.WrapExecutor(baseExecutor, inst)
	}

	guards := oasis.NewProcessorChain()
	guards.Add(oasis.NewInjectionGuard())
	guards.Add(oasis.NewContentGuard())
	guards.Add(oasis.NewMaxToolCallsGuard(cfg.Agent.MaxToolIter))

	var tracer oasis.Tracer
	if inst != nil {
		tracer = observer.NewTracer()
	}

	loopCfg := oasis.AgentLoopConfig{
		ContextWindow: cfg.Agent.ContextWindow,
		MaxToolIter:   cfg.Agent.MaxToolIter,
		Planning:      oasis.PlanningMode(cfg.Agent.Planning),
		BasePersona:   cfg.Agent.BasePersona,
	}

	loop := oasis.NewAgentLoop(provider, tools, executor, memory, guards, skills, tracer, logger, loopCfg)
	var runner interface {
		RunAgent(context.Context, string, []oasis.ChatMessage, oasis.RunAgentOptions) (oasis.RunAgentResult, error)
	} = loop
	if inst != nil {
		runner = observer.WrapAgentLoop(loop, inst)
	}

	var reminders []oasis.RecurringReminder
	for _, r := range cfg.Scheduler.Reminders {
		reminders = append(reminders, oasis.RecurringReminder{
			ID: r.ID, Prompt: r.Prompt, IntervalMinutes: r.IntervalMinutes,
			Lane: oasis.Lane(r.Lane), Enabled: r.Enabled,
		})
	}
	heartbeat := oasis.HeartbeatConfig{
		Enabled:         cfg.Scheduler.HeartbeatEnabled,
		IntervalMinutes: cfg.Scheduler.HeartbeatIntervalMins,
		Prompt:          cfg.Scheduler.HeartbeatPrompt,
	}

	rt := oasis.New(
		oasis.WithLogger(logger),
		oasis.WithToolRegistry(tools),
		oasis.WithExecutor(executor),
		oasis.WithAgentRunner(runner),
		oasis.WithSchedulerState(cfg.Scheduler.StatePath, cfg.Scheduler.TickSeconds),
		oasis.WithReminders(reminders),
		oasis.WithHeartbeat(heartbeat),
	)

	tools.Add(schedulertool.New(rt.Scheduler()))

	rt.Start(ctx)
	defer rt.Stop()

	server := httpapi.New(rt, logger)
	go func() {
		if err := server.Run(cfg.HTTP.Addr); err != nil {
			logger.Error("http server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if shutdownObserver != nil {
		_ = shutdownObserver(context.Background())
	}
}
