package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/es-bank-account/internal/infrastructure/store"
)

// MockSnapshotStore is an in-memory SnapshotStore that records saves
type MockSnapshotStore struct {
	inner *store.MemorySnapshotStore

	mu      sync.Mutex
	Saved   []store.Snapshot
	SaveErr error
	GetErr  error
}

func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{inner: store.NewMemorySnapshotStore()}
}

func (m *MockSnapshotStore) SaveSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	if m.SaveErr != nil {
		err := m.SaveErr
		m.mu.Unlock()
		return err
	}
	m.Saved = append(m.Saved, *snapshot)
	m.mu.Unlock()
	return m.inner.SaveSnapshot(ctx, snapshot)
}

func (m *MockSnapshotStore) GetLatest(ctx context.Context, snapshotType, aggregateID string) (*store.Snapshot, error) {
	if err := m.getErr(); err != nil {
		return nil, err
	}
	return m.inner.GetLatest(ctx, snapshotType, aggregateID)
}

func (m *MockSnapshotStore) GetAt(ctx context.Context, snapshotType, aggregateID string, pointInTime time.Time) (*store.Snapshot, error) {
	if err := m.getErr(); err != nil {
		return nil, err
	}
	return m.inner.GetAt(ctx, snapshotType, aggregateID, pointInTime)
}

// SavedCount returns how many snapshots were saved
func (m *MockSnapshotStore) SavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Saved)
}

func (m *MockSnapshotStore) getErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetErr
}

var _ store.SnapshotStore = (*MockSnapshotStore)(nil)
