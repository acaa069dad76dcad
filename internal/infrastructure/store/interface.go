package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConcurrencyConflict is returned by Append when the persisted version
	// of the aggregate does not match the expected version.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrInvalidBatch is returned by Append when the records do not form a
	// contiguous batch for the aggregate starting at expectedVersion+1.
	ErrInvalidBatch = errors.New("invalid event batch")
)

// EventLog is the append-only, per-aggregate ordered event log.
type EventLog interface {
	// Append atomically persists events if the highest stored version for
	// aggregateID equals expectedVersion. An empty batch is a no-op.
	Append(ctx context.Context, aggregateID string, events []Event, expectedVersion int) error

	// Read returns every event of the aggregate ordered by version.
	Read(ctx context.Context, aggregateID string) ([]Event, error)

	// ReadFrom returns events with version > afterVersion ordered by version.
	ReadFrom(ctx context.Context, aggregateID string, afterVersion int) ([]Event, error)

	// ReadUntil returns events with timestamp <= pointInTime ordered by version.
	ReadUntil(ctx context.Context, aggregateID string, pointInTime time.Time) ([]Event, error)

	// ReadAll returns every event of every aggregate ordered by timestamp.
	ReadAll(ctx context.Context) ([]Event, error)
}

// SnapshotStore keeps the append-only history of aggregate snapshots.
// Lookups return (nil, nil) when no snapshot matches.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	GetLatest(ctx context.Context, snapshotType, aggregateID string) (*Snapshot, error)
	GetAt(ctx context.Context, snapshotType, aggregateID string, pointInTime time.Time) (*Snapshot, error)
}

// validateBatch checks that events belong to aggregateID and carry versions
// expectedVersion+1, expectedVersion+2, ... in order.
func validateBatch(aggregateID string, events []Event, expectedVersion int) error {
	for i, e := range events {
		if e.AggregateID != aggregateID {
			return fmt.Errorf("%w: event %d belongs to %q, not %q", ErrInvalidBatch, i, e.AggregateID, aggregateID)
		}
		if want := expectedVersion + i + 1; e.Version != want {
			return fmt.Errorf("%w: event %d has version %d, want %d", ErrInvalidBatch, i, e.Version, want)
		}
	}
	return nil
}
