// Package planner turns a user task into a structured plan by prompting
// the configured LLM with the task and the tool catalog.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/agentsdk/pkg/agent"
	"github.com/kadirpekel/agentsdk/pkg/llms"
	"github.com/kadirpekel/agentsdk/pkg/observability"
	"github.com/kadirpekel/agentsdk/pkg/protocol"
	"github.com/kadirpekel/agentsdk/pkg/utils"
)

const systemPrompt = `You are a planning assistant. Decompose the user's task into a minimal ordered sequence of steps.
Respond with JSON only, in the shape:
{"task": "...", "steps": [{"id": 1, "description": "...", "tool": "optional tool name", "inputs": {}, "notes": "optional"}]}
Use only tools from the provided catalog. Omit "tool" for steps that need no tool.`

// Planner is the planning agent.
type Planner struct {
	ctx      *agent.Context
	provider llms.Provider
}

func New(agentCtx *agent.Context, provider llms.Provider) *Planner {
	return &Planner{
		ctx:      agentCtx,
		provider: provider,
	}
}

// Context returns the planner's agent context.
func (p *Planner) Context() *agent.Context {
	return p.ctx
}

// Plan builds the planning prompt, checks the rate limiter, invokes the
// LLM under the reliability manager and parses the response into a Plan.
// Unparseable output degrades to a one-step plan carrying the raw text;
// rate limit errors are never swallowed.
func (p *Planner) Plan(ctx context.Context, task string) (protocol.Plan, error) {
	events := p.ctx.Events
	events.Emit(observability.EventPlannerStart, p.ctx.Name, map[string]any{"task": task})

	userPrompt := fmt.Sprintf("Task: %s\n\nAvailable tools:\n%s", task, p.ctx.Tools.Catalog())
	messages := []llms.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	tokenEstimate := p.ctx.CountTokens(systemPrompt, userPrompt)
	if p.ctx.RateLimiter != nil {
		if err := p.ctx.RateLimiter.Check(p.ctx.Name, p.ctx.Model.Model, int64(tokenEstimate), p.ctx.OrgID); err != nil {
			events.Emit(observability.EventPlannerError, p.ctx.Name, map[string]any{"error": err.Error()})
			return protocol.Plan{}, err
		}
	}

	start := time.Now()
	result, err := p.generate(ctx, messages)
	latency := time.Since(start)

	events.Emit(observability.EventLLMLatency, p.ctx.Name, map[string]any{
		"model":      p.ctx.Model.Model,
		"latency_ms": float64(latency.Milliseconds()),
	})

	if err != nil {
		events.Emit(observability.EventLLMError, p.ctx.Name, map[string]any{"error": err.Error()})
		events.Emit(observability.EventPlannerError, p.ctx.Name, map[string]any{"error": err.Error()})
		slog.Warn("Planner LLM call failed, returning degenerate plan", "agent", p.ctx.Name, "error", err)
		return degeneratePlan(task, fmt.Sprintf("LLM error: %v", err)), nil
	}

	events.Emit(observability.EventLLMUsage, p.ctx.Name, map[string]any{
		"model":             p.ctx.Model.Model,
		"prompt_tokens":     result.PromptTokens,
		"completion_tokens": result.CompletionTokens,
		"total_tokens":      result.TotalTokens,
	})
	p.recordUsage(result)

	events.Emit(observability.EventPlannerRawOutput, p.ctx.Name, map[string]any{
		"output": utils.Truncate(result.Text, 500),
	})

	plan, parseErr := parsePlanResponse(task, result.Text)
	if parseErr != nil {
		slog.Warn("Planner output was not a valid plan, returning degenerate plan", "agent", p.ctx.Name, "error", parseErr)
		plan = degeneratePlan(task, result.Text)
	}

	events.Emit(observability.EventPlannerComplete, p.ctx.Name, map[string]any{
		"task":  task,
		"steps": len(plan.Steps),
	})

	return plan, nil
}

// Step consumes a user task message and returns the plan as a message
// with metadata type "plan", stamped with run metadata and appended to
// short-term history.
func (p *Planner) Step(ctx context.Context, incoming protocol.Message) (protocol.Message, error) {
	plan, err := p.Plan(ctx, incoming.Content)
	if err != nil {
		return protocol.Message{}, err
	}

	content, err := plan.Marshal()
	if err != nil {
		return protocol.Message{}, err
	}

	msg := protocol.NewMessage(protocol.RoleAgent, content)
	msg.Metadata[protocol.MetaType] = protocol.TypePlan
	msg = p.ctx.ApplyRunMetadata(msg)
	p.ctx.AddShortTerm(msg)
	return msg, nil
}

// StepOutcome carries the result of an asynchronous step.
type StepOutcome struct {
	Message protocol.Message
	Err     error
}

// StepAsync runs Step in its own goroutine and delivers the outcome on
// the returned channel.
func (p *Planner) StepAsync(ctx context.Context, incoming protocol.Message) <-chan StepOutcome {
	out := make(chan StepOutcome, 1)
	go func() {
		defer close(out)
		msg, err := p.Step(ctx, incoming)
		out <- StepOutcome{Message: msg, Err: err}
	}()
	return out
}

func (p *Planner) generate(ctx context.Context, messages []llms.ChatMessage) (*llms.GenerateResult, error) {
	call := func(ctx context.Context) (any, error) {
		return p.provider.Generate(ctx, messages, p.ctx.Model)
	}

	if p.ctx.Reliability != nil {
		out, err := p.ctx.Reliability.Execute(ctx, "llm:"+p.ctx.Model.Model, call)
		if err != nil {
			return nil, err
		}
		return out.(*llms.GenerateResult), nil
	}

	out, err := call(ctx)
	if err != nil {
		return nil, err
	}
	return out.(*llms.GenerateResult), nil
}

func (p *Planner) recordUsage(result *llms.GenerateResult) {
	if p.ctx.Observability == nil {
		return
	}
	p.ctx.Observability.Recorder().RecordUsage(
		p.ctx.Model.Model, p.ctx.Model.Provider,
		result.PromptTokens, result.CompletionTokens,
	)
}

// parsePlanResponse accepts the exact plan shape; anything else is a
// parse error handled by the caller.
func parsePlanResponse(task, text string) (protocol.Plan, error) {
	var plan protocol.Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return protocol.Plan{}, fmt.Errorf("response is not plan JSON: %w", err)
	}
	if len(plan.Steps) == 0 {
		return protocol.Plan{}, fmt.Errorf("plan has no steps")
	}
	for _, step := range plan.Steps {
		if step.Description == "" {
			return protocol.Plan{}, fmt.Errorf("step %d has no description", step.ID)
		}
	}
	if plan.Task == "" {
		plan.Task = task
	}
	return plan, nil
}

func degeneratePlan(task, description string) protocol.Plan {
	return protocol.Plan{
		Task: task,
		Steps: []protocol.PlanStep{
			{ID: 1, Description: description},
		},
	}
}
