// Package aggregate provides the event-sourced aggregate root and the
// repository that loads/saves it. Transitions are registered explicitly
// in a table keyed by event-type tag rather than resolved via
// reflection on method names, so dispatch stays an explicit table
// lookup instead of a name-convention guess.
package aggregate

import (
	"context"
	"fmt"

	"github.com/coreflow/eventcore/pkg/coreerr"
	"github.com/coreflow/eventcore/pkg/eventstore"
	"github.com/coreflow/eventcore/pkg/message"
)

// Transition applies one event's effect to state. Implementations must
// be deterministic and free of I/O.
type Transition func(state any, evt message.Event)

// Root is embedded by concrete aggregates, which call Root.Init in their
// constructor. Root holds the aggregate's state as an untyped value and
// passes it to each Transition, which type-asserts it to the concrete
// state type.
type Root struct {
	id                string
	version           int
	uncommittedEvents []message.Event
	transitions       map[string]Transition
	state             any
}

// Init wires the root to its owning aggregate's mutable state and
// transition table. Concrete aggregates call this from their
// constructor, registering one Transition per event type they handle.
func (r *Root) Init(state any, transitions map[string]Transition) {
	r.state = state
	r.transitions = transitions
	if r.transitions == nil {
		r.transitions = make(map[string]Transition)
	}
}

// AggregateID returns the aggregate's id.
func (r *Root) AggregateID() string { return r.id }

// SetAggregateID sets the aggregate's id. Called by the repository when
// constructing a fresh instance to load into.
func (r *Root) SetAggregateID(id string) { r.id = id }

// Version returns the current version: the count of events applied,
// whether replayed or freshly produced.
func (r *Root) Version() int { return r.version }

// UncommittedEvents returns the events produced since the last commit
// mark. The slice is a live view; callers must not retain it across a
// call to MarkCommitted.
func (r *Root) UncommittedEvents() []message.Event { return r.uncommittedEvents }

// Apply routes evt to its registered transition (silently ignoring a
// missing one), then
// appends evt to the uncommitted buffer and increments version. Domain
// operations call this after validating their preconditions.
func (r *Root) Apply(evt message.Event) {
	if fn, ok := r.transitions[evt.Type]; ok {
		fn(r.state, evt)
	}
	r.uncommittedEvents = append(r.uncommittedEvents, evt)
	r.version++
}

// replay applies evt to state and increments version without touching
// the uncommitted buffer — used when rebuilding state from history.
func (r *Root) replay(evt message.Event) {
	if fn, ok := r.transitions[evt.Type]; ok {
		fn(r.state, evt)
	}
	r.version++
}

// MarkCommitted clears the uncommitted buffer after the repository has
// persisted it.
func (r *Root) MarkCommitted() {
	r.uncommittedEvents = nil
}

// Replayable is implemented by every concrete aggregate so the
// repository can drive replay without reflection. Concrete aggregates
// typically just forward to their embedded *Root.
type Replayable interface {
	AggregateID() string
	SetAggregateID(id string)
	Version() int
	UncommittedEvents() []message.Event
	MarkCommitted()
	ReplayOne(evt message.Event)
}

// ReplayOne applies evt to state during replay (see replay above). It is
// exported so it can satisfy the Replayable interface from outside the
// package.
func (r *Root) ReplayOne(evt message.Event) { r.replay(evt) }

// Repository loads and saves aggregates against an event store,
// optionally seeding from a snapshot slot.
type Repository[T Replayable] struct {
	Store     eventstore.Store
	Snapshots eventstore.SnapshotStore // optional; nil disables snapshot seeding
	New       func() T                 // constructs a zero-value T ready for replay
}

// NewRepository constructs a Repository. snapshots may be nil to
// disable the snapshot-seeding optimization.
func NewRepository[T Replayable](store eventstore.Store, snapshots eventstore.SnapshotStore, newFn func() T) *Repository[T] {
	return &Repository[T]{Store: store, Snapshots: snapshots, New: newFn}
}

// Load reconstructs an aggregate by replaying its event stream. Returns
// *coreerr.ConcurrencyError's sibling, coreerr.ErrAggregateNotFound, when
// no events exist for the id.
func (r *Repository[T]) Load(ctx context.Context, aggregateID string) (T, error) {
	var zero T
	fromVersion := 0

	agg := r.New()
	agg.SetAggregateID(aggregateID)

	if r.Snapshots != nil {
		if snap, ok, err := r.Snapshots.LoadSnapshot(ctx, aggregateID); err != nil {
			return zero, fmt.Errorf("load snapshot for %q: %w", aggregateID, err)
		} else if ok {
			if seeder, ok := any(agg).(SnapshotSeedable); ok {
				seeder.SeedFromSnapshot(snap)
			}
			fromVersion = snap.Version
		}
	}

	events, err := r.Store.Load(ctx, aggregateID, fromVersion)
	if err != nil {
		return zero, fmt.Errorf("load events for %q: %w", aggregateID, err)
	}

	if fromVersion == 0 && len(events) == 0 {
		return zero, fmt.Errorf("%w: %s", coreerr.ErrAggregateNotFound, aggregateID)
	}

	for _, evt := range events {
		agg.ReplayOne(evt)
	}

	return agg, nil
}

// SnapshotSeedable is optionally implemented by aggregates that know how
// to initialize their state from a snapshot's opaque state map, enabling
// the seed-state-from-snapshot-then-replay-the-rest path.
type SnapshotSeedable interface {
	SeedFromSnapshot(snap eventstore.Snapshot)
}

// Save persists the aggregate's uncommitted events with an optimistic
// expected-version check, then clears the buffer on success. A no-op
// when there is nothing uncommitted. The repository never retries a
// concurrency conflict — callers reload and reapply.
func (r *Repository[T]) Save(ctx context.Context, agg T) error {
	buffer := agg.UncommittedEvents()
	if len(buffer) == 0 {
		return nil
	}

	expected := agg.Version() - len(buffer) - 1
	if err := r.Store.Append(ctx, agg.AggregateID(), buffer, &expected); err != nil {
		return err
	}

	agg.MarkCommitted()
	return nil
}
