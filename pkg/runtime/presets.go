package runtime

import (
	"fmt"

	"github.com/kadirpekel/agentsdk/pkg/agent"
	"github.com/kadirpekel/agentsdk/pkg/config"
	"github.com/kadirpekel/agentsdk/pkg/executor"
	"github.com/kadirpekel/agentsdk/pkg/llms"
	"github.com/kadirpekel/agentsdk/pkg/observability"
	"github.com/kadirpekel/agentsdk/pkg/planner"
	"github.com/kadirpekel/agentsdk/pkg/policy"
	"github.com/kadirpekel/agentsdk/pkg/ratelimit"
	"github.com/kadirpekel/agentsdk/pkg/reliability"
)

// Preset names accepted by NewFromPreset.
const (
	PresetMinimal   = "minimal"
	PresetStandard  = "standard"
	PresetResilient = "resilient"
)

func defaultRateLimitRules() []config.RateLimitRule {
	maxCalls := int64(60)
	maxTokens := int64(100000)
	return []config.RateLimitRule{
		{Name: "global-calls", MaxCalls: &maxCalls, WindowSeconds: 60, Scope: "global"},
		{Name: "global-tokens", MaxTokens: &maxTokens, WindowSeconds: 60, Scope: "global"},
	}
}

// NewFromPreset assembles a runtime with a canned stack:
//
//	minimal   — planner and executor sharing an event bus, nothing else
//	standard  — adds retries with a circuit breaker and the metrics recorder
//	resilient — adds sliding-window rate limits, policy enforcement and
//	            the replay store
func NewFromPreset(preset string, model llms.ModelConfig, provider llms.Provider) (*PlannerExecutorRuntime, error) {
	plannerCtx := agent.NewContext("planner")
	executorCtx := agent.NewContext("executor")
	plannerCtx.Model = model
	executorCtx.Model = model

	// Both agents share one tool registry and one event bus.
	executorCtx.Tools = plannerCtx.Tools

	var obs *observability.Manager

	switch preset {
	case PresetMinimal:
		bus := observability.NewBus()
		plannerCtx.Events = bus
		executorCtx.Events = bus

	case PresetStandard:
		obs = observability.NewManager(config.ObservabilityConfig{})
		plannerCtx.Events = obs.Events()
		executorCtx.Events = obs.Events()
		plannerCtx.Observability = obs
		executorCtx.Observability = obs

		rel := reliability.NewManager(config.ReliabilityConfig{})
		plannerCtx.Reliability = rel
		executorCtx.Reliability = rel

	case PresetResilient:
		obs = observability.NewManager(config.ObservabilityConfig{})
		plannerCtx.Events = obs.Events()
		executorCtx.Events = obs.Events()
		plannerCtx.Observability = obs
		executorCtx.Observability = obs

		rel := reliability.NewManager(config.ReliabilityConfig{})
		plannerCtx.Reliability = rel
		executorCtx.Reliability = rel

		limiter, err := ratelimit.NewLimiter(defaultRateLimitRules())
		if err != nil {
			return nil, err
		}
		plannerCtx.RateLimiter = limiter
		executorCtx.RateLimiter = limiter

		engine := policy.NewEngine(nil)
		plannerCtx.Policy = engine
		executorCtx.Policy = engine

		executorCtx.Replay = reliability.NewReplayStore()

	default:
		return nil, fmt.Errorf("unknown preset %q (supported: minimal, standard, resilient)", preset)
	}

	p := planner.New(plannerCtx, provider)
	e := executor.New(executorCtx, provider)
	return New(p, e, obs), nil
}

// NewFromConfig assembles a runtime from a full configuration document.
// Explicit sections override what the preset would have chosen.
func NewFromConfig(cfg *config.Config, model llms.ModelConfig, provider llms.Provider) (*PlannerExecutorRuntime, error) {
	preset := cfg.Preset
	if preset == "" {
		preset = PresetStandard
	}

	rt, err := NewFromPreset(preset, model, provider)
	if err != nil {
		return nil, err
	}

	plannerCtx := rt.Planner().Context()
	executorCtx := rt.Executor().Context()

	obs := observability.NewManager(cfg.Observability)
	rt.observability = obs
	plannerCtx.Events = obs.Events()
	executorCtx.Events = obs.Events()
	plannerCtx.Observability = obs
	executorCtx.Observability = obs

	if cfg.RateLimit.Enabled && len(cfg.RateLimit.Rules) > 0 {
		limiter, err := ratelimit.NewLimiter(cfg.RateLimit.Rules)
		if err != nil {
			return nil, err
		}
		plannerCtx.RateLimiter = limiter
		executorCtx.RateLimiter = limiter
	}

	rel := reliability.NewManager(cfg.Reliability)
	plannerCtx.Reliability = rel
	executorCtx.Reliability = rel

	if len(cfg.Policies) > 0 {
		engine := policy.NewEngine(cfg.Policies)
		plannerCtx.Policy = engine
		executorCtx.Policy = engine
	}

	return rt, nil
}
