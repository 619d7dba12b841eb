package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFansOutToAllSinks(t *testing.T) {
	bus := NewBus()
	a := NewMemorySink()
	b := NewMemorySink()
	bus.Subscribe(a.Sink())
	bus.Subscribe(b.Sink())

	bus.Emit(EventPlannerStart, "planner", map[string]any{"task": "t"})

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	assert.Equal(t, EventPlannerStart, a.Events()[0].Name)
	assert.Equal(t, "planner", a.Events()[0].Agent)
	assert.Equal(t, "t", a.Events()[0].Payload["task"])
	assert.False(t, a.Events()[0].Timestamp.IsZero())
}

func TestNilBusEmitIsSafe(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() {
		bus.Emit(EventToolCall, "executor", nil)
	})
}

func TestMemorySinkNamed(t *testing.T) {
	bus := NewBus()
	sink := NewMemorySink()
	bus.Subscribe(sink.Sink())

	bus.Emit(EventToolCall, "executor", nil)
	bus.Emit(EventToolResult, "executor", nil)
	bus.Emit(EventToolCall, "executor", nil)

	assert.Len(t, sink.Named(EventToolCall), 2)
	assert.Len(t, sink.Named(EventToolResult), 1)
	assert.Empty(t, sink.Named(EventToolError))
}

func TestTracerSpanHierarchy(t *testing.T) {
	tracer := NewTracer(nil)

	ctx, parent := tracer.StartSpan(t.Context(), "agent_execute:planner", KindInternal, nil)
	_, child := tracer.StartSpan(ctx, "llm_call", KindClient, parent)

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentSpanID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
	assert.Equal(t, StatusUnset, parent.Status)

	child.SetAttribute("model", "gpt-4o-mini")
	child.AddEvent("request_sent")
	child.End(nil)
	parent.End(assert.AnError)

	assert.Equal(t, StatusOK, child.Status)
	assert.Equal(t, StatusError, parent.Status)
	assert.Equal(t, assert.AnError.Error(), parent.ErrorMessage)
	require.NotNil(t, child.EndTime)

	assert.Len(t, tracer.Spans(), 2)
}

func TestRecorderLatencyStats(t *testing.T) {
	r := NewRecorder()

	_, _, ok := r.LatencyStats("tool:echo")
	assert.False(t, ok)

	for _, ms := range []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		r.RecordLatency("tool:echo", ms)
	}

	avg, p95, ok := r.LatencyStats("tool:echo")
	require.True(t, ok)
	assert.InDelta(t, 55.0, avg, 0.001)
	assert.InDelta(t, 90.0, p95, 0.001)
}

func TestRecorderUsageDerivesCost(t *testing.T) {
	r := NewRecorder()

	metric := r.RecordUsage("gpt-4o-mini", "openai", 1_000_000, 1_000_000)
	assert.Greater(t, metric.CostUSD, 0.0)

	total := r.TotalCost("gpt-4o-mini", "openai")
	assert.InDelta(t, metric.CostUSD, total, 1e-9)

	r.RecordUsage("gpt-4o-mini", "openai", 1_000_000, 1_000_000)
	assert.InDelta(t, 2*metric.CostUSD, r.TotalCost("gpt-4o-mini", "openai"), 1e-9)

	assert.Len(t, r.CostHistory(), 2)
}

func TestRecorderUnknownModelHasZeroCost(t *testing.T) {
	r := NewRecorder()
	metric := r.RecordUsage("made-up-model", "nowhere", 1000, 1000)
	assert.Zero(t, metric.CostUSD)
}

func TestFlattenAttributes(t *testing.T) {
	out := flattenAttributes(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, "a=1,b=2", out)
	assert.Empty(t, flattenAttributes(nil))
}
