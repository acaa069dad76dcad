package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const eventColumns = `id, aggregate_id, aggregate_type, event_type, data, version, created_at`

// SQLEventStore stores events in PostgreSQL or SQLite
type SQLEventStore struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

func NewSQLEventStore(db *sql.DB, dialect Dialect, log *slog.Logger) *SQLEventStore {
	return &SQLEventStore{
		db:      db,
		dialect: dialect,
		log:     log.With(slog.String("event_log", dialect.Name)),
	}
}

// Append inserts the batch in one transaction. Every row is written with a
// conditional INSERT ... SELECT that only matches while MAX(version) still
// equals the version preceding it, so the version check and the write are a
// single statement. The unique (aggregate_id, version) constraint catches
// writers that raced past the check in a concurrent transaction.
func (es *SQLEventStore) Append(ctx context.Context, aggregateID string, events []Event, expectedVersion int) (err error) {
	if len(events) == 0 {
		return nil
	}
	if err := validateBatch(aggregateID, events, expectedVersion); err != nil {
		return err
	}

	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := es.dialect.rebind(es.dialect.insertEvent)
	for i, e := range events {
		prev := expectedVersion + i
		res, execErr := tx.ExecContext(ctx, query,
			e.ID,
			e.AggregateID,
			e.AggregateType,
			e.EventType,
			string(e.Data),
			e.Version,
			es.dialect.encodeTime(e.Timestamp),
			aggregateID,
			prev,
		)
		if execErr != nil {
			if es.dialect.isUnique(execErr) {
				return es.conflict(aggregateID, expectedVersion)
			}
			return fmt.Errorf("failed to insert event %d: %w", i, execErr)
		}
		n, rowsErr := res.RowsAffected()
		if rowsErr != nil {
			return fmt.Errorf("failed to insert event %d: %w", i, rowsErr)
		}
		if n == 0 {
			return es.conflict(aggregateID, expectedVersion)
		}
	}

	if err = tx.Commit(); err != nil {
		if es.dialect.isUnique(err) {
			return es.conflict(aggregateID, expectedVersion)
		}
		return fmt.Errorf("failed to commit append: %w", err)
	}

	es.log.Debug("appended",
		slog.String("aggregate_id", aggregateID),
		slog.Int("expected_version", expectedVersion),
		slog.Int("count", len(events)),
	)
	return nil
}

func (es *SQLEventStore) conflict(aggregateID string, expectedVersion int) error {
	es.log.Debug("append conflict",
		slog.String("aggregate_id", aggregateID),
		slog.Int("expected_version", expectedVersion),
	)
	return fmt.Errorf("%w: aggregate %s is no longer at version %d", ErrConcurrencyConflict, aggregateID, expectedVersion)
}

// Read returns all events for an aggregate
func (es *SQLEventStore) Read(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = ? ORDER BY version ASC`,
		aggregateID,
	)
}

// ReadFrom returns events for an aggregate after a specific version
func (es *SQLEventStore) ReadFrom(ctx context.Context, aggregateID string, afterVersion int) ([]Event, error) {
	return es.query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = ? AND version > ? ORDER BY version ASC`,
		aggregateID, afterVersion,
	)
}

// ReadUntil returns events recorded at or before pointInTime
func (es *SQLEventStore) ReadUntil(ctx context.Context, aggregateID string, pointInTime time.Time) ([]Event, error) {
	return es.query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = ? AND created_at <= ? ORDER BY version ASC`,
		aggregateID, es.dialect.encodeTime(pointInTime),
	)
}

// ReadAll returns every event ordered by creation time
func (es *SQLEventStore) ReadAll(ctx context.Context) ([]Event, error) {
	return es.query(ctx,
		`SELECT ` + eventColumns + ` FROM events ORDER BY created_at ASC, aggregate_id ASC, version ASC`,
	)
}

func (es *SQLEventStore) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx, es.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var (
			e    Event
			data []byte
			ts   sqlTime
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Data = data
		e.Timestamp = ts.t
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

var _ EventLog = (*SQLEventStore)(nil)
