package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Event is a persisted domain event record
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// MemoryEventStore keeps events in process memory
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]Event // aggregateID -> events
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events: make(map[string][]Event),
	}
}

// Append stores the batch if the aggregate is still at expectedVersion
func (es *MemoryEventStore) Append(_ context.Context, aggregateID string, events []Event, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}
	if err := validateBatch(aggregateID, events, expectedVersion); err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	current := len(es.events[aggregateID])
	if current != expectedVersion {
		return fmt.Errorf("%w: aggregate %s expected version %d, actual %d",
			ErrConcurrencyConflict, aggregateID, expectedVersion, current)
	}

	batch := make([]Event, len(events))
	copy(batch, events)
	es.events[aggregateID] = append(es.events[aggregateID], batch...)
	return nil
}

// Read returns all events for an aggregate
func (es *MemoryEventStore) Read(_ context.Context, aggregateID string) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return cloneEvents(es.events[aggregateID]), nil
}

// ReadFrom returns events after the given version
func (es *MemoryEventStore) ReadFrom(_ context.Context, aggregateID string, afterVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	stored := es.events[aggregateID]
	if afterVersion < 0 {
		afterVersion = 0
	}
	if afterVersion >= len(stored) {
		return []Event{}, nil
	}
	// versions are 1..N, so version v lives at index v-1
	return cloneEvents(stored[afterVersion:]), nil
}

// ReadUntil returns events recorded at or before pointInTime
func (es *MemoryEventStore) ReadUntil(_ context.Context, aggregateID string, pointInTime time.Time) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	result := make([]Event, 0)
	for _, e := range es.events[aggregateID] {
		if !e.Timestamp.After(pointInTime) {
			result = append(result, e)
		}
	}
	return result, nil
}

// ReadAll returns all events ordered by timestamp
func (es *MemoryEventStore) ReadAll(_ context.Context) ([]Event, error) {
	es.mu.RLock()
	var all []Event
	for _, events := range es.events {
		all = append(all, events...)
	}
	es.mu.RUnlock()

	sortByTimestamp(all)
	return all, nil
}

func cloneEvents(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// sortByTimestamp orders events by timestamp, breaking ties by aggregate and version
func sortByTimestamp(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.AggregateID != b.AggregateID {
			return a.AggregateID < b.AggregateID
		}
		return a.Version < b.Version
	})
}

var _ EventLog = (*MemoryEventStore)(nil)
