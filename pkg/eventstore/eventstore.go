// Package eventstore defines the durable, ordered per-stream append
// contract plus a dependency-free in-memory implementation suitable as
// the core's default backend. Concrete
// storage backends (relational, cloud, HTTP-based event databases) are
// external collaborators — see adapters/postgres for one such adapter.
package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/coreflow/eventcore/pkg/coreerr"
	"github.com/coreflow/eventcore/pkg/message"
)

// Store is the async event-store contract. Implementations must
// guarantee: within one stream, Load reflects Append order; Append
// assigns contiguous positions reflecting input order; a concurrency
// conflict is reported via *coreerr.ConcurrencyError and never retried
// internally.
type Store interface {
	// Append appends events at positions [currentCount, currentCount+len(events)).
	// If expectedVersion is non-nil and does not equal currentCount-1 (the
	// current head), Append fails with *coreerr.ConcurrencyError. An empty
	// events slice is a no-op and never fails on version mismatch.
	Append(ctx context.Context, streamID string, events []message.Event, expectedVersion *int) error

	// Load returns events at positions [fromVersion, end) in position
	// order. A missing stream returns an empty slice, not an error.
	Load(ctx context.Context, streamID string, fromVersion int) ([]message.Event, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) (bool, error)
}

// Snapshot is the cached aggregate state at a particular version. At
// most one current snapshot exists per AggregateID; new writes replace
// the prior snapshot atomically.
type Snapshot struct {
	AggregateID   string
	AggregateType string
	Version       int
	State         map[string]any
	Timestamp     time.Time
}

// SnapshotStore persists and retrieves the single current snapshot slot
// per aggregate id.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context, aggregateID string) (Snapshot, bool, error)
}

// InMemoryStore is a process-local Store, the runtime's default
// backend. Concurrent appenders to the same stream are serialized by
// the mutex below; expectedVersion racing is still surfaced as a
// ConcurrencyError rather than silently ordered — one appender
// succeeds, the other sees a concurrency conflict.
type InMemoryStore struct {
	mu      sync.Mutex
	streams map[string][]message.Event
}

// NewInMemoryStore constructs an empty in-memory event store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{streams: make(map[string][]message.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, streamID string, events []message.Event, expectedVersion *int) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.streams[streamID]
	head := len(current) - 1

	if expectedVersion != nil && *expectedVersion != head {
		return &coreerr.ConcurrencyError{
			StreamID: streamID,
			Expected: *expectedVersion,
			Actual:   head,
		}
	}

	base := len(current)
	appended := make([]message.Event, len(events))
	for i, evt := range events {
		evt.Version = base + i
		appended[i] = evt
	}

	s.streams[streamID] = append(current, appended...)
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, streamID string, fromVersion int) ([]message.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.streams[streamID]
	if fromVersion >= len(all) {
		return []message.Event{}, nil
	}
	if fromVersion < 0 {
		fromVersion = 0
	}

	out := make([]message.Event, len(all)-fromVersion)
	copy(out, all[fromVersion:])
	return out, nil
}

func (s *InMemoryStore) Ping(context.Context) (bool, error) { return true, nil }

// InMemorySnapshotStore is the default, dependency-free SnapshotStore.
type InMemorySnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

// NewInMemorySnapshotStore constructs an empty in-memory snapshot store.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snapshots: make(map[string]Snapshot)}
}

func (s *InMemorySnapshotStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.AggregateID] = snap
	return nil
}

func (s *InMemorySnapshotStore) LoadSnapshot(_ context.Context, aggregateID string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[aggregateID]
	return snap, ok, nil
}
