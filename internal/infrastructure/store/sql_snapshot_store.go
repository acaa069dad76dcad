package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const snapshotColumns = `id, aggregate_id, snapshot_type, version, state, created_at`

// SQLSnapshotStore appends snapshots to the snapshots table
type SQLSnapshotStore struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

func NewSQLSnapshotStore(db *sql.DB, dialect Dialect, log *slog.Logger) *SQLSnapshotStore {
	return &SQLSnapshotStore{
		db:      db,
		dialect: dialect,
		log:     log.With(slog.String("snapshot_store", dialect.Name)),
	}
}

// SaveSnapshot inserts a new snapshot row. A snapshot already stored for the
// same aggregate version is left untouched.
func (s *SQLSnapshotStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(s.dialect.insertSnap),
		snapshot.ID,
		snapshot.AggregateID,
		snapshot.SnapshotType,
		snapshot.Version,
		string(snapshot.State),
		s.dialect.encodeTime(snapshot.CreatedAt),
	)
	if err != nil {
		if s.dialect.isUnique(err) {
			s.log.Debug("snapshot already exists",
				slog.String("aggregate_id", snapshot.AggregateID),
				slog.Int("version", snapshot.Version),
			)
			return nil
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the highest-version snapshot for an aggregate
func (s *SQLSnapshotStore) GetLatest(ctx context.Context, snapshotType, aggregateID string) (*Snapshot, error) {
	return s.queryOne(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE aggregate_id = ? AND snapshot_type = ?
		 ORDER BY version DESC LIMIT 1`,
		aggregateID, snapshotType,
	)
}

// GetAt returns the latest snapshot created at or before pointInTime
func (s *SQLSnapshotStore) GetAt(ctx context.Context, snapshotType, aggregateID string, pointInTime time.Time) (*Snapshot, error) {
	return s.queryOne(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE aggregate_id = ? AND snapshot_type = ? AND created_at <= ?
		 ORDER BY created_at DESC, version DESC LIMIT 1`,
		aggregateID, snapshotType, s.dialect.encodeTime(pointInTime),
	)
}

func (s *SQLSnapshotStore) queryOne(ctx context.Context, query string, args ...any) (*Snapshot, error) {
	var (
		snap  Snapshot
		state []byte
		ts    sqlTime
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...).
		Scan(&snap.ID, &snap.AggregateID, &snap.SnapshotType, &snap.Version, &state, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No snapshot exists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	snap.State = state
	snap.CreatedAt = ts.t
	return &snap, nil
}

var _ SnapshotStore = (*SQLSnapshotStore)(nil)
