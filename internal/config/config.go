package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the full runtime configuration: LLM provider, lane/executor
// policy, scheduler reminders, memory manager paths, the built-in tool
// set's credentials, the HTTP front-end, and observability.
type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Executor  ExecutorConfig  `toml:"executor"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Memory    MemoryConfig    `toml:"memory"`
	Agent     AgentConfig     `toml:"agent"`
	Wallet    WalletConfig    `toml:"wallet"`
	Social    SocialConfig    `toml:"social"`
	Search    SearchConfig    `toml:"search"`
	HTTP      HTTPConfig      `toml:"http"`
	Observer  ObserverConfig  `toml:"observer"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

// ExecutorConfig feeds agentcore.ResiliencePolicy.
type ExecutorConfig struct {
	MaxAttempts      int     `toml:"max_attempts"`
	BaseDelayMs      int     `toml:"base_delay_ms"`
	MaxDelayMs       int     `toml:"max_delay_ms"`
	JitterRatio      float64 `toml:"jitter_ratio"`
	FailureThreshold int     `toml:"failure_threshold"`
	CooldownMs       int     `toml:"cooldown_ms"`
}

type ReminderConfig struct {
	ID              string `toml:"id"`
	Prompt          string `toml:"prompt"`
	IntervalMinutes int    `toml:"interval_minutes"`
	Lane            string `toml:"lane"`
	Enabled         bool   `toml:"enabled"`
}

type SchedulerConfig struct {
	StatePath              string           `toml:"state_path"`
	TickSeconds            int              `toml:"tick_seconds"`
	Reminders              []ReminderConfig `toml:"reminders"`
	HeartbeatEnabled       bool             `toml:"heartbeat_enabled"`
	HeartbeatIntervalMins  int              `toml:"heartbeat_interval_minutes"`
	HeartbeatPrompt        string           `toml:"heartbeat_prompt"`
}

type MemoryConfig struct {
	BaseDir string `toml:"base_dir"`
}

// AgentConfig feeds agentcore.AgentLoopConfig.
type AgentConfig struct {
	ContextWindow int    `toml:"context_window"`
	MaxToolIter   int    `toml:"max_tool_iter"`
	Planning      string `toml:"planning"`
	BasePersona   string `toml:"base_persona"`
	SkillsDir     string `toml:"skills_dir"`
}

type WalletConfig struct {
	Address string `toml:"address"`
	RPCURL  string `toml:"rpc_url"`
}

type SocialConfig struct {
	WebhookURL string `toml:"webhook_url"`
	APIKey     string `toml:"api_key"`
}

type SearchConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	workspace := filepath.Join(home, "agentd-workspace")
	return Config{
		LLM: LLMConfig{Provider: "openaicompat", Model: "gpt-4o-mini"},
		Executor: ExecutorConfig{
			MaxAttempts:      3,
			BaseDelayMs:      200,
			MaxDelayMs:       5000,
			JitterRatio:      0.2,
			FailureThreshold: 5,
			CooldownMs:       30000,
		},
		Scheduler: SchedulerConfig{
			StatePath:             filepath.Join(workspace, "scheduler_state.json"),
			TickSeconds:           5,
			HeartbeatEnabled:      false,
			HeartbeatIntervalMins: 60,
			HeartbeatPrompt:       "Check in and report anything noteworthy.",
		},
		Memory: MemoryConfig{BaseDir: filepath.Join(workspace, "memory")},
		Agent: AgentConfig{
			ContextWindow: 32000,
			MaxToolIter:   12,
			Planning:      "auto",
			BasePersona:   "You are a helpful autonomous assistant. Respond concisely.",
			SkillsDir:     filepath.Join(workspace, "skills"),
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "agentd.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("AGENTD_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("AGENTD_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("AGENTD_WALLET_RPC_URL"); v != "" {
		cfg.Wallet.RPCURL = v
	}
	if v := os.Getenv("AGENTD_SOCIAL_API_KEY"); v != "" {
		cfg.Social.APIKey = v
	}
	if v := os.Getenv("AGENTD_SEARCH_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("AGENTD_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if os.Getenv("AGENTD_OBSERVER_ENABLED") == "true" || os.Getenv("AGENTD_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
