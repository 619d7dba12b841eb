package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentsdk/pkg/agent"
	"github.com/kadirpekel/agentsdk/pkg/config"
	"github.com/kadirpekel/agentsdk/pkg/llms"
	"github.com/kadirpekel/agentsdk/pkg/observability"
	"github.com/kadirpekel/agentsdk/pkg/protocol"
	"github.com/kadirpekel/agentsdk/pkg/ratelimit"
)

func newTestPlanner(provider llms.Provider) (*Planner, *observability.MemorySink) {
	ctx := agent.NewContext("planner")
	ctx.Model = llms.ModelConfig{Provider: "mock", Model: "mock-model"}

	sink := observability.NewMemorySink()
	bus := observability.NewBus()
	bus.Subscribe(sink.Sink())
	ctx.Events = bus

	return New(ctx, provider), sink
}

func TestPlanParsesWellFormedResponse(t *testing.T) {
	provider := llms.NewMockProvider().WithResponses(
		`{"task":"fetch and summarize","steps":[{"id":1,"description":"fetch","tool":"http.fetch","inputs":{"url":"https://example.com"}},{"id":2,"description":"summarize"}]}`,
	)
	p, sink := newTestPlanner(provider)

	plan, err := p.Plan(context.Background(), "fetch and summarize")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "http.fetch", plan.Steps[0].Tool)
	assert.Equal(t, "https://example.com", plan.Steps[0].Inputs["url"])

	assert.Len(t, sink.Named(observability.EventPlannerStart), 1)
	assert.Len(t, sink.Named(observability.EventLLMLatency), 1)
	assert.Len(t, sink.Named(observability.EventLLMUsage), 1)
	assert.Len(t, sink.Named(observability.EventPlannerRawOutput), 1)
	require.Len(t, sink.Named(observability.EventPlannerComplete), 1)
	assert.Equal(t, 2, sink.Named(observability.EventPlannerComplete)[0].Payload["steps"])
}

func TestPlanDegradesOnUnparseableOutput(t *testing.T) {
	provider := llms.NewMockProvider().WithResponses("not json")
	p, _ := newTestPlanner(provider)

	plan, err := p.Plan(context.Background(), "some task")
	require.NoError(t, err)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, 1, plan.Steps[0].ID)
	assert.Equal(t, "not json", plan.Steps[0].Description)
	assert.Empty(t, plan.Steps[0].Tool)
	assert.Equal(t, "some task", plan.Task)
}

func TestPlanDegradesOnEmptyStepList(t *testing.T) {
	provider := llms.NewMockProvider().WithResponses(`{"task":"t","steps":[]}`)
	p, _ := newTestPlanner(provider)

	plan, err := p.Plan(context.Background(), "t")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, `{"task":"t","steps":[]}`, plan.Steps[0].Description)
}

func TestPlanDegradesOnProviderError(t *testing.T) {
	provider := llms.NewMockProvider().WithError(assert.AnError)
	p, sink := newTestPlanner(provider)

	plan, err := p.Plan(context.Background(), "task")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Contains(t, plan.Steps[0].Description, "LLM error")
	assert.Len(t, sink.Named(observability.EventPlannerError), 1)
}

func TestPlanSurfacesRateLimitErrors(t *testing.T) {
	maxCalls := int64(0)
	limiter, err := ratelimit.NewLimiter([]config.RateLimitRule{
		{Name: "none", MaxCalls: &maxCalls, WindowSeconds: 60, Scope: "global"},
	})
	require.NoError(t, err)

	provider := llms.NewMockProvider()
	p, sink := newTestPlanner(provider)
	p.Context().RateLimiter = limiter

	_, err = p.Plan(context.Background(), "task")
	require.Error(t, err)

	var rlErr *ratelimit.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, ratelimit.CodeCalls, rlErr.Code)
	assert.Equal(t, 0, provider.Calls(), "rate limited call never reaches the provider")
	assert.Len(t, sink.Named(observability.EventPlannerError), 1)
}

func TestStepProducesPlanMessageWithRunMetadata(t *testing.T) {
	provider := llms.NewMockProvider().WithResponses(
		`{"task":"t","steps":[{"id":1,"description":"only step"}]}`,
	)
	p, _ := newTestPlanner(provider)
	p.Context().SetRunContext("sess-1", "run-1")

	incoming := protocol.NewMessage(protocol.RoleUser, "t")
	msg, err := p.Step(context.Background(), incoming)
	require.NoError(t, err)

	assert.Equal(t, protocol.RoleAgent, msg.Role)
	assert.Equal(t, protocol.TypePlan, msg.Metadata[protocol.MetaType])
	assert.Equal(t, "sess-1", msg.SessionID())
	assert.Equal(t, "run-1", msg.RunID())

	plan, err := protocol.ParsePlan(msg.Content)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 1)

	history := p.Context().ShortTerm()
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestStepAsyncDeliversSameOutcome(t *testing.T) {
	provider := llms.NewMockProvider().WithResponses(
		`{"task":"t","steps":[{"id":1,"description":"s"}]}`,
	)
	p, _ := newTestPlanner(provider)

	outcome := <-p.StepAsync(context.Background(), protocol.NewMessage(protocol.RoleUser, "t"))
	require.NoError(t, outcome.Err)
	assert.Equal(t, protocol.TypePlan, outcome.Message.Metadata[protocol.MetaType])
}
