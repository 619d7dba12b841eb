// Package executor runs plans step by step: policy check, tool dispatch
// under the reliability manager, LLM summarization and observation
// messages.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/agentsdk/pkg/agent"
	"github.com/kadirpekel/agentsdk/pkg/llms"
	"github.com/kadirpekel/agentsdk/pkg/observability"
	"github.com/kadirpekel/agentsdk/pkg/protocol"
	"github.com/kadirpekel/agentsdk/pkg/utils"
)

const outputPreviewLimit = 500

// Executor is the execution agent.
type Executor struct {
	ctx      *agent.Context
	provider llms.Provider
}

func New(agentCtx *agent.Context, provider llms.Provider) *Executor {
	return &Executor{
		ctx:      agentCtx,
		provider: provider,
	}
}

// Context returns the executor's agent context.
func (e *Executor) Context() *agent.Context {
	return e.ctx
}

// ExecutePlan runs every step of the plan in order and returns one
// observation message per step. Step failures do not stop the plan.
func (e *Executor) ExecutePlan(ctx context.Context, plan protocol.Plan) ([]protocol.Message, error) {
	messages := make([]protocol.Message, 0, len(plan.Steps))

	for _, step := range plan.Steps {
		e.ctx.Events.Emit(observability.EventStepStart, e.ctx.Name, map[string]any{
			"step_id":     step.ID,
			"description": step.Description,
			"tool":        step.Tool,
		})

		result := e.runStep(ctx, step)
		summary := e.summarize(ctx, plan.Task, step, result)

		msg := e.observation(step, result, summary)
		e.ctx.AddShortTerm(msg)
		messages = append(messages, msg)

		e.ctx.Events.Emit(observability.EventStepComplete, e.ctx.Name, map[string]any{
			"step_id": step.ID,
			"success": result.Success,
		})
	}

	return messages, nil
}

// Step consumes a plan message, executes it and returns the final
// observation. An empty plan yields a synthetic completion message.
// Content that is not plan JSON is an error: plans arriving here were
// produced by the planner and are expected to be well formed.
func (e *Executor) Step(ctx context.Context, incoming protocol.Message) (protocol.Message, error) {
	plan, err := protocol.ParsePlan(incoming.Content)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("executor received invalid plan: %w", err)
	}

	if len(plan.Steps) == 0 {
		msg := protocol.NewMessage(protocol.RoleAgent, "No steps to execute")
		msg.Metadata[protocol.MetaType] = protocol.TypeExecution
		msg = e.ctx.ApplyRunMetadata(msg)
		e.ctx.AddShortTerm(msg)
		return msg, nil
	}

	messages, err := e.ExecutePlan(ctx, plan)
	if err != nil {
		return protocol.Message{}, err
	}
	return messages[len(messages)-1], nil
}

// StepOutcome carries the result of an asynchronous step.
type StepOutcome struct {
	Message protocol.Message
	Err     error
}

// StepAsync runs Step in its own goroutine and delivers the outcome on
// the returned channel.
func (e *Executor) StepAsync(ctx context.Context, incoming protocol.Message) <-chan StepOutcome {
	out := make(chan StepOutcome, 1)
	go func() {
		defer close(out)
		msg, err := e.Step(ctx, incoming)
		out <- StepOutcome{Message: msg, Err: err}
	}()
	return out
}

// runStep dispatches the step's tool, if any. Steps without a tool
// succeed with a nil output.
func (e *Executor) runStep(ctx context.Context, step protocol.PlanStep) protocol.StepResult {
	if step.Tool == "" {
		return protocol.StepResult{StepID: step.ID, Success: true}
	}

	toolImpl, err := e.ctx.Tools.GetTool(step.Tool)
	if err != nil {
		message := fmt.Sprintf("Tool '%s' not found", step.Tool)
		e.ctx.Events.Emit(observability.EventToolNotFound, e.ctx.Name, map[string]any{
			"step_id": step.ID,
			"tool":    step.Tool,
		})
		e.emitToolLatency(step.Tool, 0, false)
		return protocol.StepResult{StepID: step.ID, Success: false, Error: message}
	}

	// Inputs stay untouched on the plan; the copy gets the nil default.
	inputs := step.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}

	if e.ctx.Policy != nil {
		if err := e.ctx.Policy.Authorize(e.ctx.OrgID, step.Tool, inputs); err != nil {
			e.ctx.Events.Emit(observability.EventToolError, e.ctx.Name, map[string]any{
				"step_id": step.ID,
				"tool":    step.Tool,
				"error":   err.Error(),
			})
			e.emitToolLatency(step.Tool, 0, false)
			return protocol.StepResult{StepID: step.ID, Success: false, Error: err.Error()}
		}
	}

	if e.ctx.ReplayMode && e.ctx.Replay != nil {
		if output, ok := e.ctx.Replay.Lookup(step.ID); ok {
			e.ctx.Events.Emit(observability.EventToolResult, e.ctx.Name, map[string]any{
				"step_id": step.ID,
				"tool":    step.Tool,
				"output":  utils.Truncate(utils.Stringify(output), outputPreviewLimit),
				"replay":  true,
			})
			return protocol.StepResult{StepID: step.ID, Success: true, Output: output}
		}
	}

	e.ctx.Events.Emit(observability.EventToolCall, e.ctx.Name, map[string]any{
		"step_id": step.ID,
		"tool":    step.Tool,
		"inputs":  inputs,
	})

	invoke := func(ctx context.Context) (any, error) {
		return toolImpl.Execute(ctx, inputs)
	}

	start := time.Now()
	var output any
	if e.ctx.Reliability != nil {
		output, err = e.ctx.Reliability.Execute(ctx, "tool:"+step.Tool, invoke)
	} else {
		output, err = invoke(ctx)
	}
	elapsed := time.Since(start)

	e.emitToolLatency(step.Tool, elapsed, err == nil)
	if e.ctx.Observability != nil && e.ctx.Observability.OtelMetrics() != nil {
		e.ctx.Observability.OtelMetrics().RecordToolExecution(ctx, step.Tool, elapsed, err)
	}

	if err != nil {
		e.ctx.Events.Emit(observability.EventToolError, e.ctx.Name, map[string]any{
			"step_id": step.ID,
			"tool":    step.Tool,
			"error":   err.Error(),
		})
		return protocol.StepResult{StepID: step.ID, Success: false, Error: err.Error()}
	}

	if e.ctx.Replay != nil && !e.ctx.ReplayMode {
		e.ctx.Replay.Record(step.ID, output)
	}

	e.ctx.Events.Emit(observability.EventToolResult, e.ctx.Name, map[string]any{
		"step_id": step.ID,
		"tool":    step.Tool,
		"output":  utils.Truncate(utils.Stringify(output), outputPreviewLimit),
	})

	return protocol.StepResult{StepID: step.ID, Success: true, Output: output}
}

func (e *Executor) emitToolLatency(toolName string, elapsed time.Duration, success bool) {
	latencyMs := float64(elapsed.Nanoseconds()) / 1e6
	e.ctx.Events.Emit(observability.EventToolLatency, e.ctx.Name, map[string]any{
		"tool":       toolName,
		"latency_ms": latencyMs,
		"success":    success,
	})
	if e.ctx.Observability != nil {
		e.ctx.Observability.Recorder().RecordLatency("tool:"+toolName, latencyMs)
	}
}

// summarize asks the LLM for a one-line account of the step. A
// summarization failure never changes the step outcome; the summary
// degrades to the raw output or the error text.
func (e *Executor) summarize(ctx context.Context, task string, step protocol.PlanStep, result protocol.StepResult) string {
	fallback := utils.Stringify(result.Output)
	if !result.Success {
		fallback = result.Error
	}

	prompt := fmt.Sprintf(
		"Task: %s\nStep: %s\nTool: %s\nOutcome: %s\n\nSummarize this step's outcome in one short sentence.",
		task, step.Description, step.Tool, utils.Truncate(fallback, outputPreviewLimit),
	)
	messages := []llms.ChatMessage{
		{Role: "user", Content: prompt},
	}

	tokenEstimate := e.ctx.CountTokens(prompt)
	if e.ctx.RateLimiter != nil {
		if err := e.ctx.RateLimiter.Check(e.ctx.Name, e.ctx.Model.Model, int64(tokenEstimate), e.ctx.OrgID); err != nil {
			e.ctx.Events.Emit(observability.EventLLMRateLimited, e.ctx.Name, map[string]any{
				"model": e.ctx.Model.Model,
				"error": err.Error(),
			})
			slog.Warn("Summarization rate limited, using raw outcome", "agent", e.ctx.Name, "error", err)
			return fallback
		}
	}

	call := func(ctx context.Context) (any, error) {
		return e.provider.Generate(ctx, messages, e.ctx.Model)
	}

	start := time.Now()
	var out any
	var err error
	if e.ctx.Reliability != nil {
		out, err = e.ctx.Reliability.Execute(ctx, "llm:"+e.ctx.Model.Model, call)
	} else {
		out, err = call(ctx)
	}

	e.ctx.Events.Emit(observability.EventLLMLatency, e.ctx.Name, map[string]any{
		"model":      e.ctx.Model.Model,
		"latency_ms": float64(time.Since(start).Milliseconds()),
	})

	if err != nil {
		e.ctx.Events.Emit(observability.EventLLMError, e.ctx.Name, map[string]any{"error": err.Error()})
		slog.Warn("Summarization failed, using raw outcome", "agent", e.ctx.Name, "error", err)
		return fallback
	}

	generated := out.(*llms.GenerateResult)
	e.ctx.Events.Emit(observability.EventLLMUsage, e.ctx.Name, map[string]any{
		"model":             e.ctx.Model.Model,
		"prompt_tokens":     generated.PromptTokens,
		"completion_tokens": generated.CompletionTokens,
		"total_tokens":      generated.TotalTokens,
	})
	if e.ctx.Observability != nil {
		e.ctx.Observability.Recorder().RecordUsage(
			e.ctx.Model.Model, e.ctx.Model.Provider,
			generated.PromptTokens, generated.CompletionTokens,
		)
	}

	if generated.Text == "" {
		return fallback
	}
	return generated.Text
}

func (e *Executor) observation(step protocol.PlanStep, result protocol.StepResult, summary string) protocol.Message {
	content := fmt.Sprintf("Step %d: %s\nResult: %s", step.ID, step.Description, summary)

	msg := protocol.NewMessage(protocol.RoleAgent, content)
	msg.Metadata[protocol.MetaType] = protocol.TypeExecutionStep
	msg.Metadata[protocol.MetaStepID] = step.ID
	msg.Metadata[protocol.MetaTool] = step.Tool
	msg.Metadata[protocol.MetaSuccess] = result.Success
	return e.ctx.ApplyRunMetadata(msg)
}
