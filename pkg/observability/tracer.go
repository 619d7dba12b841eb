package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

// SpanKind mirrors the otel span kinds we distinguish.
type SpanKind string

const (
	KindInternal SpanKind = "internal"
	KindServer   SpanKind = "server"
	KindClient   SpanKind = "client"
	KindProducer SpanKind = "producer"
	KindConsumer SpanKind = "consumer"
)

// SpanStatus is the terminal status of a span.
type SpanStatus string

const (
	StatusUnset SpanStatus = "unset"
	StatusOK    SpanStatus = "ok"
	StatusError SpanStatus = "error"
)

// Span is a traced unit of work with parent/child linkage.
type Span struct {
	Name         string         `json:"name"`
	SpanID       string         `json:"span_id"`
	TraceID      string         `json:"trace_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Kind         SpanKind       `json:"kind"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Status       SpanStatus     `json:"status"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Events       []string       `json:"events,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`

	tracer   *Tracer
	otelSpan oteltrace.Span
}

// Tracer records spans in-process and mirrors them to otel when an
// exporter is configured.
type Tracer struct {
	mu    sync.RWMutex
	spans []*Span
	otel  oteltrace.Tracer
}

func NewTracer(otelTracer oteltrace.Tracer) *Tracer {
	return &Tracer{otel: otelTracer}
}

// StartSpan opens a span. A non-nil parent links the new span into the
// parent's trace; otherwise a fresh trace id is generated.
func (t *Tracer) StartSpan(ctx context.Context, name string, kind SpanKind, parent *Span) (context.Context, *Span) {
	span := &Span{
		Name:       name,
		SpanID:     uuid.NewString(),
		Kind:       kind,
		StartTime:  time.Now(),
		Status:     StatusUnset,
		Attributes: make(map[string]any),
		tracer:     t,
	}

	if parent != nil {
		span.TraceID = parent.TraceID
		span.ParentSpanID = parent.SpanID
	} else {
		span.TraceID = uuid.NewString()
	}

	if t != nil && t.otel != nil {
		ctx, span.otelSpan = t.otel.Start(ctx, name)
	}

	if t != nil {
		t.mu.Lock()
		t.spans = append(t.spans, span)
		t.mu.Unlock()
	}

	return ctx, span
}

// SetAttribute records a key/value on the span.
func (s *Span) SetAttribute(key string, value any) {
	if s == nil {
		return
	}
	s.Attributes[key] = value
	if s.otelSpan != nil {
		s.otelSpan.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
	}
}

// AddEvent appends a named event to the span.
func (s *Span) AddEvent(name string) {
	if s == nil {
		return
	}
	s.Events = append(s.Events, name)
	if s.otelSpan != nil {
		s.otelSpan.AddEvent(name)
	}
}

// End closes the span. A non-nil err sets error status and the message.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	now := time.Now()
	s.EndTime = &now
	if err != nil {
		s.Status = StatusError
		s.ErrorMessage = err.Error()
	} else {
		s.Status = StatusOK
	}
	if s.otelSpan != nil {
		if err != nil {
			s.otelSpan.RecordError(err)
		}
		s.otelSpan.End()
	}
}

// Spans returns a snapshot of all recorded spans.
func (t *Tracer) Spans() []*Span {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Span, len(t.spans))
	copy(out, t.spans)
	return out
}

// InitGlobalTracer builds the otel tracer provider for span export.
// Disabled tracing yields a noop provider.
func InitGlobalTracer(ctx context.Context, cfg config.TracingConfig) (oteltrace.TracerProvider, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.EndpointURL),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}
