// Package projection implements a CQRS projection engine: forward-only,
// at-least-once, idempotent consumption of an event stream into a read
// model, with a persisted cursor enabling recovery and replay.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreflow/eventcore/pkg/message"
)

// State is the per-projection progress cursor.
type State struct {
	ProjectionID         string
	LastProcessedEventID string
	LastProcessedPos     int
	UpdatedAt            time.Time
	ErrorCount           int
	Healthy              bool
}

// StateStore persists and retrieves a projection's cursor.
type StateStore interface {
	LoadState(ctx context.Context, projectionID string) (State, bool, error)
	SaveState(ctx context.Context, state State) error
}

// Handler updates a read model in response to one event. Handlers may
// be slow/blocking; the engine awaits each one in turn — no
// intra-stream parallelism, the projection model is single-writer per
// projection id.
type Handler func(ctx context.Context, evt message.Event) error

// Engine is the CQRS projection runtime for a single projection id.
type Engine struct {
	projectionID string
	states       StateStore
	logger       *slog.Logger
	handlers     map[string][]Handler
	state        State
	initialized  bool
}

// NewEngine constructs an Engine bound to one projection id and its
// state store. A nil logger defaults to slog.Default().
func NewEngine(projectionID string, states StateStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		projectionID: projectionID,
		states:       states,
		logger:       logger,
		handlers:     make(map[string][]Handler),
	}
}

// On registers handler for eventType. Handlers run in registration
// order for a given event; registry is keyed by the event's wire type
// tag rather than a Go type, since projections consume events across a
// serialization boundary.
func (e *Engine) On(eventType string, handler Handler) {
	e.handlers[eventType] = append(e.handlers[eventType], handler)
}

// Initialize loads the projection's cursor, creating a fresh one if
// none exists. Must be called once before Process/ProcessStream.
func (e *Engine) Initialize(ctx context.Context) error {
	state, ok, err := e.states.LoadState(ctx, e.projectionID)
	if err != nil {
		return fmt.Errorf("load projection state for %q: %w", e.projectionID, err)
	}
	if !ok {
		state = State{ProjectionID: e.projectionID, Healthy: true, UpdatedAt: time.Now().UTC()}
		if err := e.states.SaveState(ctx, state); err != nil {
			return fmt.Errorf("save initial projection state for %q: %w", e.projectionID, err)
		}
	}
	e.state = state
	e.initialized = true
	return nil
}

// State returns the engine's current in-memory cursor.
func (e *Engine) State() State { return e.state }

// IsHealthy reports cursor.healthy && cursor present.
func (e *Engine) IsHealthy() bool { return e.initialized && e.state.Healthy }

// Process handles one event: check idempotency, run handlers, advance
// and persist the cursor. Redelivery of an already-processed event id
// is a no-op. On any handler error, the error count and unhealthy flag
// are persisted and the error is re-raised — the caller decides retry
// policy.
func (e *Engine) Process(ctx context.Context, evt message.Event) error {
	if !e.initialized {
		if err := e.Initialize(ctx); err != nil {
			return err
		}
	}

	if e.state.LastProcessedEventID == evt.ID {
		return nil
	}

	for _, h := range e.handlers[evt.Type] {
		if err := h(ctx, evt); err != nil {
			e.state.ErrorCount++
			e.state.Healthy = false
			if saveErr := e.states.SaveState(ctx, e.state); saveErr != nil {
				e.logger.Error("failed to persist projection error state",
					"projection_id", e.projectionID, "event_id", evt.ID, "error", saveErr)
			}
			return fmt.Errorf("projection %q handling event %q (%s): %w", e.projectionID, evt.ID, evt.Type, err)
		}
	}

	e.state.LastProcessedEventID = evt.ID
	e.state.LastProcessedPos = evt.Position()
	e.state.UpdatedAt = time.Now().UTC()

	if err := e.states.SaveState(ctx, e.state); err != nil {
		return fmt.Errorf("persist projection state for %q: %w", e.projectionID, err)
	}
	return nil
}

// ProcessStream invokes Process sequentially for each event in order.
func (e *Engine) ProcessStream(ctx context.Context, events []message.Event) error {
	for _, evt := range events {
		if err := e.Process(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Replay resets the cursor (destructively — intended for rebuild after
// handler-code changes) and reprocesses events from the start.
func (e *Engine) Replay(ctx context.Context, events []message.Event) error {
	e.state = State{
		ProjectionID: e.projectionID,
		Healthy:      true,
		UpdatedAt:    time.Now().UTC(),
	}
	e.initialized = true
	if err := e.states.SaveState(ctx, e.state); err != nil {
		return fmt.Errorf("reset projection state for %q: %w", e.projectionID, err)
	}
	return e.ProcessStream(ctx, events)
}

// InMemoryStateStore is the default, dependency-free StateStore.
type InMemoryStateStore struct {
	states map[string]State
}

// NewInMemoryStateStore constructs an empty in-memory projection state store.
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{states: make(map[string]State)}
}

func (s *InMemoryStateStore) LoadState(_ context.Context, projectionID string) (State, bool, error) {
	st, ok := s.states[projectionID]
	return st, ok, nil
}

func (s *InMemoryStateStore) SaveState(_ context.Context, state State) error {
	s.states[state.ProjectionID] = state
	return nil
}
