package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLiteDB(t *testing.T) *SQLEventStore {
	t.Helper()
	return NewSQLEventStore(openSQLite(t), SQLite, discardLogger())
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Connect(SQLite, filepath.Join(t.TempDir(), "bank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db, SQLite))
	return db
}

// makeEvents builds count events for aggregateID numbered after afterVersion, one minute apart
func makeEvents(aggregateID string, afterVersion, count int) []Event {
	events := make([]Event, count)
	for i := range events {
		v := afterVersion + i + 1
		events[i] = Event{
			ID:            uuid.NewString(),
			AggregateID:   aggregateID,
			AggregateType: "BankAccount",
			EventType:     "MoneyDeposited",
			Data:          []byte(fmt.Sprintf(`{"amount":%d}`, v*10)),
			Timestamp:     baseTime.Add(time.Duration(v) * time.Minute),
			Version:       v,
		}
	}
	return events
}

func versions(events []Event) []int {
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.Version
	}
	return out
}

// testEventLog runs the behaviour every EventLog implementation must share
func testEventLog(t *testing.T, newLog func(t *testing.T) EventLog) {
	ctx := context.Background()

	t.Run("append and read", func(t *testing.T) {
		log := newLog(t)
		require.NoError(t, log.Append(ctx, "acc-1", makeEvents("acc-1", 0, 3), 0))

		events, err := log.Read(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, versions(events))
		assert.Equal(t, "BankAccount", events[0].AggregateType)
		assert.Equal(t, "MoneyDeposited", events[0].EventType)
		assert.JSONEq(t, `{"amount":10}`, string(events[0].Data))
		assert.True(t, events[2].Timestamp.Equal(baseTime.Add(3*time.Minute)))
	})

	t.Run("read unknown aggregate is empty", func(t *testing.T) {
		log := newLog(t)
		events, err := log.Read(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		log := newLog(t)
		require.NoError(t, log.Append(ctx, "acc-1", nil, 42))
		events, err := log.Read(ctx, "acc-1")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("stale expected version conflicts and writes nothing", func(t *testing.T) {
		log := newLog(t)
		require.NoError(t, log.Append(ctx, "acc-1", makeEvents("acc-1", 0, 2), 0))

		err := log.Append(ctx, "acc-1", makeEvents("acc-1", 1, 2), 1)
		require.ErrorIs(t, err, ErrConcurrencyConflict)

		events, err := log.Read(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, versions(events))
	})

	t.Run("expected version ahead of the log conflicts", func(t *testing.T) {
		log := newLog(t)
		require.NoError(t, log.Append(ctx, "acc-1", makeEvents("acc-1", 0, 1), 0))

		err := log.Append(ctx, "acc-1", makeEvents("acc-1", 3, 1), 3)
		require.ErrorIs(t, err, ErrConcurrencyConflict)
	})

	t.Run("batch with gaps is rejected", func(t *testing.T) {
		log := newLog(t)
		batch := makeEvents("acc-1", 0, 3)
		batch[2].Version = 5

		err := log.Append(ctx, "acc-1", batch, 0)
		require.ErrorIs(t, err, ErrInvalidBatch)

		events, err := log.Read(ctx, "acc-1")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("read from version", func(t *testing.T) {
		log := newLog(t)
		require.NoError(t, log.Append(ctx, "acc-1", makeEvents("acc-1", 0, 5), 0))

		events, err := log.ReadFrom(ctx, "acc-1", 3)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 5}, versions(events))

		events, err = log.ReadFrom(ctx, "acc-1", 5)
		require.NoError(t, err)
		assert.Empty(t, events)

		events, err = log.ReadFrom(ctx, "acc-1", 0)
		require.NoError(t, err)
		assert.Len(t, events, 5)
	})

	t.Run("read until timestamp is inclusive", func(t *testing.T) {
		log := newLog(t)
		require.NoError(t, log.Append(ctx, "acc-1", makeEvents("acc-1", 0, 4), 0))

		events, err := log.ReadUntil(ctx, "acc-1", baseTime.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, versions(events))

		events, err = log.ReadUntil(ctx, "acc-1", baseTime)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("read all is ordered by timestamp", func(t *testing.T) {
		log := newLog(t)
		a := makeEvents("acc-a", 0, 2)
		b := makeEvents("acc-b", 0, 2)
		b[0].Timestamp = baseTime.Add(30 * time.Second)
		require.NoError(t, log.Append(ctx, "acc-a", a, 0))
		require.NoError(t, log.Append(ctx, "acc-b", b, 0))

		all, err := log.ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "acc-b", all[0].AggregateID)
		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp))
		}
	})

	t.Run("concurrent appends at the same version", func(t *testing.T) {
		log := newLog(t)
		require.NoError(t, log.Append(ctx, "acc-1", makeEvents("acc-1", 0, 1), 0))

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := log.Append(ctx, "acc-1", makeEvents("acc-1", 1, 1), 1)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, ErrConcurrencyConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, writers-1, conflicts)

		events, err := log.Read(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, versions(events))
	})
}

func testSnapshotStore(t *testing.T, newStore func(t *testing.T) SnapshotStore) {
	ctx := context.Background()

	snap := func(version int, at time.Time) *Snapshot {
		return &Snapshot{
			ID:           uuid.NewString(),
			AggregateID:  "acc-1",
			SnapshotType: "BankAccount",
			Version:      version,
			State:        []byte(fmt.Sprintf(`{"version":%d}`, version)),
			CreatedAt:    at,
		}
	}

	t.Run("missing snapshot is nil", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetLatest(ctx, "BankAccount", "acc-1")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = s.GetAt(ctx, "BankAccount", "acc-1", baseTime)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("latest is the highest version", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveSnapshot(ctx, snap(10, baseTime.Add(time.Minute))))
		require.NoError(t, s.SaveSnapshot(ctx, snap(20, baseTime.Add(2*time.Minute))))

		got, err := s.GetLatest(ctx, "BankAccount", "acc-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 20, got.Version)
		assert.JSONEq(t, `{"version":20}`, string(got.State))
		assert.True(t, got.CreatedAt.Equal(baseTime.Add(2*time.Minute)))
	})

	t.Run("history is kept", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveSnapshot(ctx, snap(10, baseTime.Add(time.Minute))))
		require.NoError(t, s.SaveSnapshot(ctx, snap(20, baseTime.Add(3*time.Minute))))

		got, err := s.GetAt(ctx, "BankAccount", "acc-1", baseTime.Add(2*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 10, got.Version)

		got, err = s.GetAt(ctx, "BankAccount", "acc-1", baseTime.Add(3*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 20, got.Version)

		got, err = s.GetAt(ctx, "BankAccount", "acc-1", baseTime)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("snapshot type is part of the key", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveSnapshot(ctx, snap(10, baseTime)))

		got, err := s.GetLatest(ctx, "Other", "acc-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestMemoryEventStore(t *testing.T) {
	testEventLog(t, func(t *testing.T) EventLog { return NewMemoryEventStore() })
}

func TestSQLiteEventStore(t *testing.T) {
	testEventLog(t, func(t *testing.T) EventLog { return newSQLiteDB(t) })
}

func TestMemorySnapshotStore(t *testing.T) {
	testSnapshotStore(t, func(t *testing.T) SnapshotStore { return NewMemorySnapshotStore() })
}

func TestSQLiteSnapshotStore(t *testing.T) {
	testSnapshotStore(t, func(t *testing.T) SnapshotStore {
		return NewSQLSnapshotStore(openSQLite(t), SQLite, discardLogger())
	})
}
