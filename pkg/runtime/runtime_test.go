package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentsdk/pkg/config"
	"github.com/kadirpekel/agentsdk/pkg/llms"
	"github.com/kadirpekel/agentsdk/pkg/protocol"
)

var testModel = llms.ModelConfig{Provider: "mock", Model: "mock-model"}

func planResponse() string {
	return `{"task":"t","steps":[{"id":1,"description":"only step"}]}`
}

func TestRunReturnsPlanAndFinalMessage(t *testing.T) {
	provider := llms.NewMockProvider().WithResponses(planResponse(), "Step done.")
	rt, err := NewFromPreset(PresetMinimal, testModel, provider)
	require.NoError(t, err)

	messages, err := rt.Run(context.Background(), "do the thing", "sess-1", "run-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	planMsg, finalMsg := messages[0], messages[1]
	assert.Equal(t, protocol.TypePlan, planMsg.Metadata[protocol.MetaType])
	assert.Equal(t, protocol.TypeExecutionStep, finalMsg.Metadata[protocol.MetaType])

	for _, msg := range messages {
		assert.Equal(t, "sess-1", msg.SessionID())
		assert.Equal(t, "run-1", msg.RunID())
	}
}

func TestRunGeneratesSessionAndRunIDs(t *testing.T) {
	provider := llms.NewMockProvider().WithResponses(planResponse(), "done", planResponse(), "done")
	rt, err := NewFromPreset(PresetMinimal, testModel, provider)
	require.NoError(t, err)

	first, err := rt.Run(context.Background(), "first task", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, first[0].SessionID())
	require.NotEmpty(t, first[0].RunID())

	// A second run without an explicit session reuses the current one but
	// gets a fresh run id.
	second, err := rt.Run(context.Background(), "second task", "", "")
	require.NoError(t, err)
	assert.Equal(t, first[0].SessionID(), second[0].SessionID())
	assert.NotEqual(t, first[0].RunID(), second[0].RunID())
}

func TestRunRecordsUserMessageInPlannerHistory(t *testing.T) {
	provider := llms.NewMockProvider().WithResponses(planResponse(), "done")
	rt, err := NewFromPreset(PresetMinimal, testModel, provider)
	require.NoError(t, err)

	_, err = rt.Run(context.Background(), "remember me", "sess", "run")
	require.NoError(t, err)

	history := rt.Planner().Context().ShortTerm()
	require.Len(t, history, 2, "user message plus plan message")
	assert.Equal(t, protocol.RoleUser, history[0].Role)
	assert.Equal(t, "remember me", history[0].Content)
	assert.Equal(t, "sess", history[0].SessionID())
}

func TestRunAsyncDeliversOutcome(t *testing.T) {
	provider := llms.NewMockProvider().WithResponses(planResponse(), "done")
	rt, err := NewFromPreset(PresetMinimal, testModel, provider)
	require.NoError(t, err)

	outcome := <-rt.RunAsync(context.Background(), "task", "", "")
	require.NoError(t, outcome.Err)
	assert.Len(t, outcome.Messages, 2)
}

func TestPresetStacks(t *testing.T) {
	provider := llms.NewMockProvider()

	minimal, err := NewFromPreset(PresetMinimal, testModel, provider)
	require.NoError(t, err)
	assert.Nil(t, minimal.Observability())
	assert.Nil(t, minimal.Planner().Context().Reliability)
	assert.NotNil(t, minimal.Planner().Context().Events)
	assert.Same(t, minimal.Planner().Context().Events, minimal.Executor().Context().Events)
	assert.Same(t, minimal.Planner().Context().Tools, minimal.Executor().Context().Tools)

	standard, err := NewFromPreset(PresetStandard, testModel, provider)
	require.NoError(t, err)
	assert.NotNil(t, standard.Observability())
	assert.NotNil(t, standard.Planner().Context().Reliability)
	assert.Nil(t, standard.Planner().Context().RateLimiter)
	assert.Nil(t, standard.Executor().Context().Replay)

	resilient, err := NewFromPreset(PresetResilient, testModel, provider)
	require.NoError(t, err)
	assert.NotNil(t, resilient.Planner().Context().RateLimiter)
	assert.NotNil(t, resilient.Planner().Context().Policy)
	assert.NotNil(t, resilient.Executor().Context().Replay)

	_, err = NewFromPreset("turbo", testModel, provider)
	assert.Error(t, err)
}

func TestTracedRunEmitsAgentSpans(t *testing.T) {
	provider := llms.NewMockProvider().WithResponses(planResponse(), "done")
	rt, err := NewFromPreset(PresetStandard, testModel, provider)
	require.NoError(t, err)

	_, err = rt.Run(context.Background(), "task", "", "")
	require.NoError(t, err)

	spans := rt.Observability().GetTracer().Spans()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "agent_execute:planner")
	assert.Contains(t, names, "agent_execute:executor")
}

func TestNewFromConfigAppliesOverrides(t *testing.T) {
	maxCalls := int64(5)
	cfg := &config.Config{
		Preset: PresetMinimal,
		RateLimit: config.RateLimitConfig{
			Enabled: true,
			Rules: []config.RateLimitRule{
				{Name: "tight", MaxCalls: &maxCalls, WindowSeconds: 60, Scope: "global"},
			},
		},
		Policies: map[string]config.Policy{
			"acme": {Tools: config.ToolPolicy{Deny: []string{"danger"}}},
		},
	}

	rt, err := NewFromConfig(cfg, testModel, llms.NewMockProvider())
	require.NoError(t, err)

	assert.NotNil(t, rt.Observability(), "config builds an observability manager even over minimal")
	assert.NotNil(t, rt.Planner().Context().RateLimiter)
	assert.NotNil(t, rt.Planner().Context().Reliability)
	assert.NotNil(t, rt.Executor().Context().Policy)
}
