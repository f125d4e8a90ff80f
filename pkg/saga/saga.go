// Package saga implements an orchestrated, compensation-based saga
// runtime: a sequence of steps, each with a forward action and an
// optional compensation, executed in order with automatic
// reverse-order compensation on failure.
package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreflow/eventcore/pkg/coreerr"
)

// Status is the saga's overall lifecycle state.
type Status string

const (
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusCompensating Status = "compensating"
	StatusFailed       Status = "failed"
)

// StepStatus is one step's outcome within a saga run.
type StepStatus string

const (
	StepPending      StepStatus = "pending"
	StepCompleted    StepStatus = "completed"
	StepFailed       StepStatus = "failed"
	StepCompensated  StepStatus = "compensated"
	StepCompensating StepStatus = "compensating"
)

// State is the persisted record of one saga instance's progress,
// enabling crash recovery.
type State struct {
	SagaID      string
	SagaType    string
	Status      Status
	StepStatus  map[string]StepStatus
	CurrentStep int
	UpdatedAt   time.Time
	LastError   string
}

// StateStore persists saga progress.
type StateStore interface {
	LoadState(ctx context.Context, sagaID string) (State, bool, error)
	SaveState(ctx context.Context, state State) error
}

// StepResult is one completed step's recorded outcome. Execute threads
// a map of these, keyed by step name, into every later Action and into
// every Compensation run during rollback, so a step can reference what
// an earlier step actually produced (e.g. the ledger entry ID a debit
// created) instead of recomputing or guessing it.
type StepResult struct {
	StepName string
	Value    any
}

// Step is one unit of saga work: a forward Action and an optional
// Compensation run to undo it. Compensation may be nil for steps with
// no side effect to reverse. Both receive the results recorded by every
// step that has already completed, keyed by step name; a completed
// step's own entry is present in the map passed to its Compensation
// (looked up via prior[step.Name]) but never in the map passed to its own
// Action, since it hasn't run yet. A step whose Action failed has no
// entry, including when its own Compensation runs.
type Step struct {
	Name         string
	Action       func(ctx context.Context, prior map[string]StepResult) (any, error)
	Compensation func(ctx context.Context, prior map[string]StepResult) error
}

// CompensationFailurePolicy controls what happens when a compensation
// itself fails while unwinding a saga. Defaults to StopOnFailure:
// masking a compensation failure risks leaving the system in a
// partially-undone state silently.
type CompensationFailurePolicy int

const (
	// StopOnFailure aborts the remaining compensation chain on first
	// compensation error, leaving the saga StatusFailed with whatever
	// was undone so far recorded in State.StepStatus.
	StopOnFailure CompensationFailurePolicy = iota
	// BestEffort runs every remaining compensation regardless of
	// earlier compensation failures, maximizing rollback at the cost
	// of masking individual compensation errors: each is logged and its
	// step marked StepFailed, and Execute returns only the original step
	// error.
	BestEffort
)

// Saga is a named, ordered sequence of Steps run by Execute. Use
// NewSaga to get the recommended defaults; a bare &Saga{} leaves
// CompensateFailedStep and Policy at their Go zero values (false and
// StopOnFailure respectively).
type Saga struct {
	ID     string
	Type   string
	Steps  []Step
	States StateStore
	Logger *slog.Logger
	// CompensateFailedStep, when true, also runs the Compensation of
	// the step whose Action failed (not just the steps before it).
	// NewSaga sets this true: a failed action may still have taken
	// partial effect before erroring, so its own compensation runs too.
	CompensateFailedStep bool
	Policy               CompensationFailurePolicy
}

// NewSaga builds a Saga with CompensateFailedStep defaulted to true.
// Callers needing StopOnFailure's alternative (BestEffort) or
// CompensateFailedStep disabled can set those fields on the returned
// value before calling Execute.
func NewSaga(id, sagaType string, steps []Step, states StateStore, logger *slog.Logger) *Saga {
	return &Saga{
		ID:                   id,
		Type:                 sagaType,
		Steps:                steps,
		States:               states,
		Logger:               logger,
		CompensateFailedStep: true,
		Policy:               StopOnFailure,
	}
}

// Execute runs the saga's steps forward in order. On the first step
// failure, it compensates every completed step in reverse order (and
// the failed step itself if CompensateFailedStep), then returns a
// *coreerr.SagaStepError describing the failure; if StopOnFailure aborts
// on a failed compensation, the returned error wraps both that
// *coreerr.SagaStepError and the compensation error. The saga's terminal
// Status is StatusFailed whenever any step failed, whether or not every
// compensation it triggered itself succeeded — a rolled-back saga is
// still a failed one. A fully successful run returns nil with Status
// left at StatusCompleted.
func (s *Saga) Execute(ctx context.Context) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	state := State{
		SagaID:     s.ID,
		SagaType:   s.Type,
		Status:     StatusRunning,
		StepStatus: make(map[string]StepStatus, len(s.Steps)),
		UpdatedAt:  time.Now().UTC(),
	}
	for _, step := range s.Steps {
		state.StepStatus[step.Name] = StepPending
	}
	s.persist(ctx, state, logger)

	results := make(map[string]StepResult, len(s.Steps))

	failedAt := -1
	var stepErr error

	for i, step := range s.Steps {
		state.CurrentStep = i
		value, err := step.Action(ctx, results)
		if err != nil {
			state.StepStatus[step.Name] = StepFailed
			stepErr = &coreerr.SagaStepError{SagaID: s.ID, SagaType: s.Type, StepName: step.Name, Err: err}
			failedAt = i
			break
		}
		results[step.Name] = StepResult{StepName: step.Name, Value: value}
		state.StepStatus[step.Name] = StepCompleted
		s.persist(ctx, state, logger)
	}

	if failedAt == -1 {
		state.Status = StatusCompleted
		s.persist(ctx, state, logger)
		return nil
	}

	state.Status = StatusCompensating
	state.LastError = stepErr.Error()
	s.persist(ctx, state, logger)

	compensateUpTo := failedAt - 1
	if s.CompensateFailedStep {
		compensateUpTo = failedAt
	}

	for i := compensateUpTo; i >= 0; i-- {
		step := s.Steps[i]
		if step.Compensation == nil {
			continue
		}
		state.StepStatus[step.Name] = StepCompensating
		s.persist(ctx, state, logger)

		if err := step.Compensation(ctx, results); err != nil {
			logger.Error("saga compensation failed",
				"saga_id", s.ID, "saga_type", s.Type, "step", step.Name, "error", err)
			if s.Policy == StopOnFailure {
				state.StepStatus[step.Name] = StepFailed
				state.Status = StatusFailed
				state.LastError = fmt.Sprintf("compensation for step %q failed: %v", step.Name, err)
				s.persist(ctx, state, logger)
				return fmt.Errorf("%w; saga %q compensation aborted at step %q: %w", stepErr, s.ID, step.Name, err)
			}
			state.StepStatus[step.Name] = StepFailed
			continue
		}
		state.StepStatus[step.Name] = StepCompensated
		s.persist(ctx, state, logger)
	}

	// A saga that needed compensation is a failed saga regardless of
	// whether every compensation it ran succeeded.
	state.Status = StatusFailed
	s.persist(ctx, state, logger)
	return stepErr
}

func (s *Saga) persist(ctx context.Context, state State, logger *slog.Logger) {
	if s.States == nil {
		return
	}
	state.UpdatedAt = time.Now().UTC()
	if err := s.States.SaveState(ctx, state); err != nil {
		logger.Error("failed to persist saga state", "saga_id", s.ID, "error", err)
	}
}

// InMemoryStateStore is the default, dependency-free StateStore.
type InMemoryStateStore struct {
	states map[string]State
}

// NewInMemoryStateStore constructs an empty in-memory saga state store.
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{states: make(map[string]State)}
}

func (s *InMemoryStateStore) LoadState(_ context.Context, sagaID string) (State, bool, error) {
	st, ok := s.states[sagaID]
	return st, ok, nil
}

func (s *InMemoryStateStore) SaveState(_ context.Context, state State) error {
	// Copy StepStatus so callers mutating their own map don't alias
	// into the store (the saga's state map is reused across persist
	// calls within one Execute).
	cp := state
	cp.StepStatus = make(map[string]StepStatus, len(state.StepStatus))
	for k, v := range state.StepStatus {
		cp.StepStatus[k] = v
	}
	s.states[state.SagaID] = cp
	return nil
}
