package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSnapshotThreshold(t *testing.T) {
	assert.Equal(t, 10, DefaultSnapshotThreshold)
}

func TestMemorySnapshotStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySnapshotStore()
	require.NoError(t, s.SaveSnapshot(ctx, &Snapshot{
		ID:           uuid.NewString(),
		AggregateID:  "acc-1",
		SnapshotType: "BankAccount",
		Version:      10,
		State:        []byte(`{"balance":100}`),
		CreatedAt:    baseTime,
	}))

	got, err := s.GetLatest(ctx, "BankAccount", "acc-1")
	require.NoError(t, err)
	got.Version = 99

	again, err := s.GetLatest(ctx, "BankAccount", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 10, again.Version)
}

func TestMemorySnapshotStore_GetAtTieBreaksOnVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySnapshotStore()
	for _, v := range []int{10, 20} {
		require.NoError(t, s.SaveSnapshot(ctx, &Snapshot{
			ID: uuid.NewString(), AggregateID: "acc-1", SnapshotType: "BankAccount",
			Version: v, State: []byte(`{}`), CreatedAt: baseTime,
		}))
	}

	got, err := s.GetAt(ctx, "BankAccount", "acc-1", baseTime)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 20, got.Version)
}

func TestSQLSnapshotStore_DuplicateVersionIsIgnored(t *testing.T) {
	ctx := context.Background()
	s := NewSQLSnapshotStore(openSQLite(t), SQLite, discardLogger())

	first := &Snapshot{
		ID: uuid.NewString(), AggregateID: "acc-1", SnapshotType: "BankAccount",
		Version: 10, State: []byte(`{"balance":100}`), CreatedAt: baseTime,
	}
	second := *first
	second.ID = uuid.NewString()
	second.State = []byte(`{"balance":999}`)

	require.NoError(t, s.SaveSnapshot(ctx, first))
	require.NoError(t, s.SaveSnapshot(ctx, &second))

	got, err := s.GetLatest(ctx, "BankAccount", "acc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.JSONEq(t, `{"balance":100}`, string(got.State))
}

func TestDialect_Rebind(t *testing.T) {
	q := `SELECT * FROM events WHERE aggregate_id = ? AND version > ?`

	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, `SELECT * FROM events WHERE aggregate_id = $1 AND version > $2`, Postgres.rebind(q))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name)

	d, err = DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name)

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestSQLTime_Scan(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)

	var st sqlTime
	require.NoError(t, st.Scan(want.In(time.FixedZone("CET", 3600))))
	assert.True(t, want.Equal(st.t))
	assert.Equal(t, time.UTC, st.t.Location())

	require.NoError(t, st.Scan(want.Format(textTimeLayout)))
	assert.True(t, want.Equal(st.t))

	require.NoError(t, st.Scan([]byte(want.Format(time.RFC3339Nano))))
	assert.True(t, want.Equal(st.t))

	assert.Error(t, st.Scan(nil))
	assert.Error(t, st.Scan(42))
	assert.Error(t, st.Scan("yesterday"))
}

func TestTextTimeLayout_SortsChronologically(t *testing.T) {
	earlier := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	later := earlier.Add(500 * time.Microsecond)

	assert.Less(t, formatTextTime(earlier), formatTextTime(later))
}
