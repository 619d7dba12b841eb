// Package observability provides the in-process event bus, the span
// tracer and the metrics recorder (with cost aggregation and prometheus
// export) used across the planner, executor and queue.
package observability

import (
	"sync"
	"time"
)

// Event names emitted by the planner and executor.
const (
	EventPlannerStart     = "planner.start"
	EventPlannerComplete  = "planner.complete"
	EventPlannerError     = "planner.error"
	EventPlannerRawOutput = "planner.raw_output"
	EventStepStart        = "executor.step.start"
	EventStepComplete     = "executor.step.complete"
	EventToolCall         = "executor.tool.call"
	EventToolResult       = "executor.tool.result"
	EventToolError        = "executor.tool.error"
	EventToolNotFound     = "executor.tool.not_found"
	EventToolLatency      = "tool.latency"
	EventLLMLatency       = "llm.latency"
	EventLLMUsage         = "llm.usage"
	EventLLMError         = "llm.error"
	EventLLMRateLimited   = "llm.rate_limited"
)

// Event is a single observability record.
type Event struct {
	Name      string         `json:"name"`
	Agent     string         `json:"agent"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink consumes events. Sinks must not block; slow consumers should
// buffer internally.
type Sink func(Event)

// Bus fans events out to registered sinks in-process.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds a sink. Sinks cannot be removed; build a fresh bus for a
// different sink set.
func (b *Bus) Subscribe(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Emit publishes an event to every sink. Safe on a nil bus so callers can
// skip nil checks.
func (b *Bus) Emit(name, agent string, payload map[string]any) {
	if b == nil {
		return
	}

	event := Event{
		Name:      name,
		Agent:     agent,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, sink := range sinks {
		sink(event)
	}
}

// MemorySink collects events for inspection; used in tests and the debug
// exporter.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Sink returns the bus-compatible capture function.
func (s *MemorySink) Sink() Sink {
	return func(e Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = append(s.events, e)
	}
}

// Events returns a snapshot of captured events.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Named returns captured events with the given name.
func (s *MemorySink) Named(name string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
