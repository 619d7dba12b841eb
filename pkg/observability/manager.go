package observability

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

// Manager wires the event bus, span tracer and metrics recorder together
// and owns exporter lifecycle.
type Manager struct {
	config   config.ObservabilityConfig
	events   *Bus
	recorder *Recorder
	tracer   *Tracer
	otel     *OtelMetrics

	tracerProvider oteltrace.TracerProvider
	mu             sync.RWMutex
}

func NewManager(cfg config.ObservabilityConfig) *Manager {
	return &Manager{
		config:   cfg,
		events:   NewBus(),
		recorder: NewRecorder(),
	}
}

// Initialize starts the trace exporter, builds the span tracer and
// registers the prometheus collector.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitGlobalTracer(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp
	m.tracer = NewTracer(tp.Tracer("agentsdk"))

	otelMetrics, err := InitOtelMetrics(ctx, m.config.Metrics)
	if err != nil {
		return err
	}
	m.otel = otelMetrics

	if m.config.Metrics.Enabled {
		if err := prometheus.Register(NewCollector(m.recorder)); err != nil {
			if _, already := err.(prometheus.AlreadyRegisteredError); !already {
				return err
			}
		}
	}

	return nil
}

func (m *Manager) Events() *Bus {
	return m.events
}

func (m *Manager) Recorder() *Recorder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recorder
}

func (m *Manager) GetTracer() *Tracer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tracer == nil {
		m.tracer = NewTracer(nil)
	}
	return m.tracer
}

func (m *Manager) OtelMetrics() *OtelMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.otel
}

// Shutdown flushes the trace exporter.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if spt, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		return spt.Shutdown(ctx)
	}
	return nil
}
