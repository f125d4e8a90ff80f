package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OtelMetrics adapts MetricsProvider onto an OpenTelemetry Meter,
// lazily creating one instrument per metric name since the otel API
// requires an instrument handle up front rather than accepting an
// arbitrary name per call.
type OtelMetrics struct {
	meter metric.Meter

	counters   map[string]metric.Float64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

// NewOtelMetrics constructs an OtelMetrics backed by meter (typically
// obtained from an otel/sdk/metric MeterProvider).
func NewOtelMetrics(meter metric.Meter) *OtelMetrics {
	return &OtelMetrics{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func (m *OtelMetrics) Counter(ctx context.Context, name string, value float64, labels map[string]string) {
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Float64Counter(name)
		if err != nil {
			return
		}
		m.counters[name] = c
	}
	c.Add(ctx, value, metric.WithAttributes(toAttrs(labels)...))
}

func (m *OtelMetrics) Gauge(ctx context.Context, name string, value float64, labels map[string]string) {
	g, ok := m.gauges[name]
	if !ok {
		var err error
		g, err = m.meter.Float64Gauge(name)
		if err != nil {
			return
		}
		m.gauges[name] = g
	}
	g.Record(ctx, value, metric.WithAttributes(toAttrs(labels)...))
}

func (m *OtelMetrics) Histogram(ctx context.Context, name string, value float64, unit string, labels map[string]string) {
	h, ok := m.histograms[name]
	if !ok {
		var err error
		opts := []metric.Float64HistogramOption{}
		if unit != "" {
			opts = append(opts, metric.WithUnit(unit))
		}
		h, err = m.meter.Float64Histogram(name, opts...)
		if err != nil {
			return
		}
		m.histograms[name] = h
	}
	h.Record(ctx, value, metric.WithAttributes(toAttrs(labels)...))
}

// OtelTracing adapts TracingProvider onto an OpenTelemetry Tracer.
type OtelTracing struct {
	tracer trace.Tracer
}

// NewOtelTracing constructs an OtelTracing backed by tracer (typically
// obtained from an otel/sdk TracerProvider).
func NewOtelTracing(tracer trace.Tracer) *OtelTracing {
	return &OtelTracing{tracer: tracer}
}

func (t *OtelTracing) StartSpan(ctx context.Context, operation string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, operation)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}
