// Package runtime composes a planner and an executor into a single
// planner-executor pipeline with session and run context propagation.
package runtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentsdk/pkg/executor"
	"github.com/kadirpekel/agentsdk/pkg/observability"
	"github.com/kadirpekel/agentsdk/pkg/planner"
	"github.com/kadirpekel/agentsdk/pkg/protocol"
)

// PlannerExecutorRuntime drives one planner and one executor through a
// full plan-then-execute run.
type PlannerExecutorRuntime struct {
	planner       *planner.Planner
	executor      *executor.Executor
	observability *observability.Manager
}

func New(p *planner.Planner, e *executor.Executor, obs *observability.Manager) *PlannerExecutorRuntime {
	return &PlannerExecutorRuntime{
		planner:       p,
		executor:      e,
		observability: obs,
	}
}

// Planner exposes the planning agent.
func (r *PlannerExecutorRuntime) Planner() *planner.Planner {
	return r.planner
}

// Executor exposes the execution agent.
func (r *PlannerExecutorRuntime) Executor() *executor.Executor {
	return r.executor
}

// Observability exposes the observability manager, or nil when the
// runtime was built without one.
func (r *PlannerExecutorRuntime) Observability() *observability.Manager {
	return r.observability
}

// Run plans and executes a task. An empty sessionID reuses the planner's
// current session, or starts a new one when there is none. The run id is
// fresh for every call unless explicitly supplied. Returns the plan
// message followed by the final execution message.
func (r *PlannerExecutorRuntime) Run(ctx context.Context, task, sessionID, runID string) ([]protocol.Message, error) {
	if sessionID == "" {
		sessionID = r.planner.Context().SessionID()
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	r.planner.Context().SetRunContext(sessionID, runID)
	r.executor.Context().SetRunContext(sessionID, runID)

	userMsg := protocol.NewMessage(protocol.RoleUser, task)
	userMsg = r.planner.Context().ApplyRunMetadata(userMsg)
	r.planner.Context().AddShortTerm(userMsg)

	planMsg, err := r.traced(ctx, r.planner.Context().Name, task, func(ctx context.Context) (protocol.Message, error) {
		return r.planner.Step(ctx, userMsg)
	})
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}

	finalMsg, err := r.traced(ctx, r.executor.Context().Name, task, func(ctx context.Context) (protocol.Message, error) {
		return r.executor.Step(ctx, planMsg)
	})
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	return []protocol.Message{planMsg, finalMsg}, nil
}

// RunOutcome carries the result of an asynchronous run.
type RunOutcome struct {
	Messages []protocol.Message
	Err      error
}

// RunAsync runs Run in its own goroutine and delivers the outcome on the
// returned channel.
func (r *PlannerExecutorRuntime) RunAsync(ctx context.Context, task, sessionID, runID string) <-chan RunOutcome {
	out := make(chan RunOutcome, 1)
	go func() {
		defer close(out)
		messages, err := r.Run(ctx, task, sessionID, runID)
		out <- RunOutcome{Messages: messages, Err: err}
	}()
	return out
}

// traced wraps an agent step in an "agent_execute" span when
// observability is configured.
func (r *PlannerExecutorRuntime) traced(ctx context.Context, agentName, goal string, fn func(context.Context) (protocol.Message, error)) (protocol.Message, error) {
	if r.observability == nil {
		return fn(ctx)
	}

	spanCtx, span := r.observability.GetTracer().StartSpan(ctx, "agent_execute:"+agentName, observability.KindInternal, nil)
	span.SetAttribute("agent", agentName)
	span.SetAttribute("goal", goal)

	msg, err := fn(spanCtx)
	span.End(err)
	return msg, err
}
