package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coreflow/eventcore/pkg/coreerr"
	"github.com/coreflow/eventcore/pkg/eventstore"
	"github.com/coreflow/eventcore/pkg/message"
)

// EventStore is a PostgreSQL-backed eventstore.Store. The composite
// unique constraint on (aggregate_id, stream_position) is what turns a
// concurrent double-append at the same expected version into a
// constraint violation the store translates into a ConcurrencyError,
// the same guarantee pkg/eventstore.InMemoryStore gives under its mutex.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore constructs an EventStore over client's pool.
func NewEventStore(client *Client) *EventStore {
	return &EventStore{pool: client.pool}
}

func (s *EventStore) Append(ctx context.Context, streamID string, events []message.Event, expectedVersion *int) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	var head int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(stream_position), -1) FROM events WHERE aggregate_id = $1`,
		streamID,
	).Scan(&head)
	if err != nil {
		return fmt.Errorf("query stream head: %w", err)
	}

	if expectedVersion != nil && *expectedVersion != head {
		return &coreerr.ConcurrencyError{StreamID: streamID, Expected: *expectedVersion, Actual: head}
	}

	batch := &pgx.Batch{}
	for i, evt := range events {
		evt.Version = head + 1 + i
		data, err := json.Marshal(evt.Data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		id := evt.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(
			`INSERT INTO events (id, aggregate_id, stream_position, type, schema_version, source,
				subject, data_content_type, data_schema, correlation_id, causation_id, occurred_at, data)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			id, streamID, evt.Version, evt.Type, evt.SchemaVersion, evt.Source,
			evt.Subject, evt.DataContentType, evt.DataSchema, evt.CorrelationID, evt.CausationID,
			evt.Timestamp, data,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range events {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isUniqueViolation(err) {
				return &coreerr.ConcurrencyError{StreamID: streamID, Expected: *safeDeref(expectedVersion, head), Actual: head}
			}
			return fmt.Errorf("append events: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append transaction: %w", err)
	}
	return nil
}

func safeDeref(p *int, fallback int) *int {
	if p != nil {
		return p
	}
	return &fallback
}

func (s *EventStore) Load(ctx context.Context, streamID string, fromVersion int) ([]message.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, aggregate_id, stream_position, type, schema_version, source, subject,
			data_content_type, data_schema, correlation_id, causation_id, occurred_at, data
		 FROM events
		 WHERE aggregate_id = $1 AND stream_position >= $2
		 ORDER BY stream_position ASC`,
		streamID, fromVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]message.Event, 0)
	for rows.Next() {
		var (
			evt     message.Event
			rawData []byte
		)
		if err := rows.Scan(
			&evt.ID, &evt.AggregateID, &evt.Version, &evt.Type, &evt.SchemaVersion, &evt.Source,
			&evt.Subject, &evt.DataContentType, &evt.DataSchema, &evt.CorrelationID, &evt.CausationID,
			&evt.Timestamp, &rawData,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(rawData, &evt.Data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *EventStore) Ping(ctx context.Context) (bool, error) {
	if err := s.pool.Ping(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

// SnapshotStore is a PostgreSQL-backed eventstore.SnapshotStore, upserting
// the single current snapshot row per aggregate id.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore constructs a SnapshotStore over client's pool.
func NewSnapshotStore(client *Client) *SnapshotStore {
	return &SnapshotStore{pool: client.pool}
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap eventstore.Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshal snapshot state: %w", err)
	}
	takenAt := snap.Timestamp
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (aggregate_id, version, state, taken_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (aggregate_id) DO UPDATE SET version = $2, state = $3, taken_at = $4`,
		snap.AggregateID, snap.Version, state, takenAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, aggregateID string) (eventstore.Snapshot, bool, error) {
	var (
		snap    eventstore.Snapshot
		rawData []byte
	)
	snap.AggregateID = aggregateID

	err := s.pool.QueryRow(ctx,
		`SELECT version, state, taken_at FROM snapshots WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&snap.Version, &rawData, &snap.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eventstore.Snapshot{}, false, nil
		}
		return eventstore.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	if err := json.Unmarshal(rawData, &snap.State); err != nil {
		return eventstore.Snapshot{}, false, fmt.Errorf("unmarshal snapshot state: %w", err)
	}
	return snap, true, nil
}
