package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultSnapshotThreshold is the number of events between count-based snapshots
const DefaultSnapshotThreshold = 10

// Snapshot represents a point-in-time state of an aggregate
type Snapshot struct {
	ID           string          `json:"id"`
	AggregateID  string          `json:"aggregate_id"`
	SnapshotType string          `json:"snapshot_type"`
	Version      int             `json:"version"` // last event version folded into State
	State        json.RawMessage `json:"state"`   // Serialized aggregate state
	CreatedAt    time.Time       `json:"created_at"`
}

// MemorySnapshotStore keeps every snapshot ever saved, per aggregate
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string][]Snapshot // type/aggregateID -> history in save order
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		snapshots: make(map[string][]Snapshot),
	}
}

func snapshotKey(snapshotType, aggregateID string) string {
	return snapshotType + "/" + aggregateID
}

// SaveSnapshot appends a snapshot to the aggregate's history
func (s *MemorySnapshotStore) SaveSnapshot(_ context.Context, snapshot *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := snapshotKey(snapshot.SnapshotType, snapshot.AggregateID)
	s.snapshots[key] = append(s.snapshots[key], *snapshot)
	return nil
}

// GetLatest returns the snapshot with the highest version
func (s *MemorySnapshotStore) GetLatest(_ context.Context, snapshotType, aggregateID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Snapshot
	for i, snap := range s.snapshots[snapshotKey(snapshotType, aggregateID)] {
		if latest == nil || snap.Version > latest.Version {
			latest = &s.snapshots[snapshotKey(snapshotType, aggregateID)][i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

// GetAt returns the snapshot with the latest CreatedAt not after pointInTime
func (s *MemorySnapshotStore) GetAt(_ context.Context, snapshotType, aggregateID string, pointInTime time.Time) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Snapshot
	history := s.snapshots[snapshotKey(snapshotType, aggregateID)]
	for i := range history {
		snap := &history[i]
		if snap.CreatedAt.After(pointInTime) {
			continue
		}
		if found == nil || snap.CreatedAt.After(found.CreatedAt) ||
			(snap.CreatedAt.Equal(found.CreatedAt) && snap.Version > found.Version) {
			found = snap
		}
	}
	if found == nil {
		return nil, nil
	}
	out := *found
	return &out, nil
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)
