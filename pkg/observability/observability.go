// Package observability provides metrics/tracing hooks instrumenting
// event-sourcing operations, decoupled from any specific backend, with
// no-op defaults and callback registration for event-store/aggregate
// lifecycle points.
package observability

import (
	"context"
	"log/slog"
	"sync"
)

// MetricsProvider records counters/gauges/histograms to a backend.
// Implement this to integrate Prometheus, StatsD, or (as Otel does)
// OpenTelemetry's metric SDK.
type MetricsProvider interface {
	Counter(ctx context.Context, name string, value float64, labels map[string]string)
	Gauge(ctx context.Context, name string, value float64, labels map[string]string)
	Histogram(ctx context.Context, name string, value float64, unit string, labels map[string]string)
}

// NoopMetrics discards everything. The zero value is ready to use.
type NoopMetrics struct{}

func (NoopMetrics) Counter(context.Context, string, float64, map[string]string)            {}
func (NoopMetrics) Gauge(context.Context, string, float64, map[string]string)               {}
func (NoopMetrics) Histogram(context.Context, string, float64, string, map[string]string)   {}

// Span is a single traced operation, returned by TracingProvider.StartSpan.
type Span interface {
	End()
	SetError(err error)
}

// TracingProvider starts spans for event-store operations.
type TracingProvider interface {
	StartSpan(ctx context.Context, operation string) (context.Context, Span)
}

// NoopTracing discards everything. The zero value is ready to use.
type NoopTracing struct{}

func (NoopTracing) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()           {}
func (noopSpan) SetError(error) {}

// Hooks is the central registry instrumenting eventcore's runtime.
// Callers inject *Hooks explicitly rather than reach for a
// process-global, matching the rest of this runtime's
// dependency-injected components.
type Hooks struct {
	Metrics MetricsProvider
	Tracing TracingProvider
	Logger  *slog.Logger

	mu                sync.Mutex
	eventStoredHooks   []func(aggregateID string, version int)
	eventLoadedHooks   []func(aggregateID string, count int)
	eventReplayedHooks []func(aggregateID, eventType string)
	snapshotSavedHooks []func(aggregateID string, version int)
	snapshotLoadedHooks []func(aggregateID string, version int)
	aggregateErrorHooks []func(aggregateID, errMsg string)
}

// New constructs a Hooks instance. Nil metrics/tracing/logger default
// to no-ops and slog.Default() respectively.
func New(metrics MetricsProvider, tracing TracingProvider, logger *slog.Logger) *Hooks {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if tracing == nil {
		tracing = NoopTracing{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{Metrics: metrics, Tracing: tracing, Logger: logger}
}

// RecordEventStored records an event append and fires registered hooks.
func (h *Hooks) RecordEventStored(ctx context.Context, aggregateID string, version int) {
	h.Metrics.Counter(ctx, "eventcore.events.stored", 1, map[string]string{"aggregate_id": aggregateID})
	h.mu.Lock()
	hooks := append([]func(string, int){}, h.eventStoredHooks...)
	h.mu.Unlock()
	for _, hook := range hooks {
		hook(aggregateID, version)
	}
}

// RecordEventLoaded records the count of events loaded on a replay.
func (h *Hooks) RecordEventLoaded(ctx context.Context, aggregateID string, count int) {
	h.Metrics.Histogram(ctx, "eventcore.events.loaded.count", float64(count), "", map[string]string{"aggregate_id": aggregateID})
	h.mu.Lock()
	hooks := append([]func(string, int){}, h.eventLoadedHooks...)
	h.mu.Unlock()
	for _, hook := range hooks {
		hook(aggregateID, count)
	}
}

// RecordEventReplayed records a single event's replay during aggregate rebuild.
func (h *Hooks) RecordEventReplayed(ctx context.Context, aggregateID, eventType string) {
	h.Metrics.Counter(ctx, "eventcore.events.replayed", 1, map[string]string{"aggregate_id": aggregateID, "event_type": eventType})
	h.mu.Lock()
	hooks := append([]func(string, string){}, h.eventReplayedHooks...)
	h.mu.Unlock()
	for _, hook := range hooks {
		hook(aggregateID, eventType)
	}
}

// RecordSnapshotSaved records a snapshot write.
func (h *Hooks) RecordSnapshotSaved(ctx context.Context, aggregateID string, version int) {
	h.Metrics.Counter(ctx, "eventcore.snapshots.saved", 1, map[string]string{"aggregate_id": aggregateID})
	h.mu.Lock()
	hooks := append([]func(string, int){}, h.snapshotSavedHooks...)
	h.mu.Unlock()
	for _, hook := range hooks {
		hook(aggregateID, version)
	}
}

// RecordSnapshotLoaded records a snapshot read used to seed a load.
func (h *Hooks) RecordSnapshotLoaded(ctx context.Context, aggregateID string, version int) {
	h.Metrics.Counter(ctx, "eventcore.snapshots.loaded", 1, map[string]string{"aggregate_id": aggregateID})
	h.mu.Lock()
	hooks := append([]func(string, int){}, h.snapshotLoadedHooks...)
	h.mu.Unlock()
	for _, hook := range hooks {
		hook(aggregateID, version)
	}
}

// RecordAggregateError records a failure on an aggregate operation,
// also logging it at warn level.
func (h *Hooks) RecordAggregateError(ctx context.Context, aggregateID string, err error) {
	h.Metrics.Counter(ctx, "eventcore.aggregate.errors", 1, map[string]string{"aggregate_id": aggregateID})
	h.mu.Lock()
	hooks := append([]func(string, string){}, h.aggregateErrorHooks...)
	h.mu.Unlock()
	for _, hook := range hooks {
		hook(aggregateID, err.Error())
	}
	h.Logger.Warn("aggregate error", "aggregate_id", aggregateID, "error", err)
}

// StartEventStoreOperation begins a trace span named "event_store.<operation>".
func (h *Hooks) StartEventStoreOperation(ctx context.Context, operation string) (context.Context, Span) {
	return h.Tracing.StartSpan(ctx, "event_store."+operation)
}

// OnEventStored registers a callback fired by RecordEventStored.
func (h *Hooks) OnEventStored(cb func(aggregateID string, version int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eventStoredHooks = append(h.eventStoredHooks, cb)
}

// OnEventLoaded registers a callback fired by RecordEventLoaded.
func (h *Hooks) OnEventLoaded(cb func(aggregateID string, count int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eventLoadedHooks = append(h.eventLoadedHooks, cb)
}

// OnEventReplayed registers a callback fired by RecordEventReplayed.
func (h *Hooks) OnEventReplayed(cb func(aggregateID, eventType string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eventReplayedHooks = append(h.eventReplayedHooks, cb)
}

// OnSnapshotSaved registers a callback fired by RecordSnapshotSaved.
func (h *Hooks) OnSnapshotSaved(cb func(aggregateID string, version int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshotSavedHooks = append(h.snapshotSavedHooks, cb)
}

// OnSnapshotLoaded registers a callback fired by RecordSnapshotLoaded.
func (h *Hooks) OnSnapshotLoaded(cb func(aggregateID string, version int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshotLoadedHooks = append(h.snapshotLoadedHooks, cb)
}

// OnAggregateError registers a callback fired by RecordAggregateError.
func (h *Hooks) OnAggregateError(cb func(aggregateID, errMsg string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aggregateErrorHooks = append(h.aggregateErrorHooks, cb)
}
