package aggregate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/es-bank-account/internal/infrastructure/store"
	"github.com/google/uuid"
)

// Root carries the bookkeeping every aggregate shares: the committed version
// and the buffer of records produced since the aggregate was loaded.
// Embed it in a domain aggregate.
type Root struct {
	version int
	pending []store.Event
	clock   func() time.Time
}

// GetVersion returns the number of committed events
func (r *Root) GetVersion() int { return r.version }

// SetVersion is used when restoring from a snapshot
func (r *Root) SetVersion(v int) { r.version = v }

// SetClock replaces the time source used to stamp new records
func (r *Root) SetClock(now func() time.Time) { r.clock = now }

// Now returns the current time in the form records are stored with:
// UTC, truncated to microseconds.
func (r *Root) Now() time.Time {
	now := time.Now
	if r.clock != nil {
		now = r.clock
	}
	return now().UTC().Truncate(time.Microsecond)
}

// PendingRecords returns the records not yet persisted, oldest first
func (r *Root) PendingRecords() []store.Event {
	out := make([]store.Event, len(r.pending))
	copy(out, r.pending)
	return out
}

// MarkCommitted advances the version past the pending records and clears them
func (r *Root) MarkCommitted() {
	r.version += len(r.pending)
	r.pending = nil
}

// Record serializes payload into the next pending record. The record takes
// version GetVersion()+len(pending)+1.
func (r *Root) Record(aggregateID, aggregateType, eventType string, payload any, at time.Time) (store.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return store.Event{}, fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}
	rec := store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
		Timestamp:     at,
		Version:       r.version + len(r.pending) + 1,
	}
	r.pending = append(r.pending, rec)
	return rec, nil
}

// ReplayError describes a stored record that was skipped during replay
type ReplayError struct {
	Version   int
	EventType string
	Err       error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("skipped %s at version %d: %v", e.EventType, e.Version, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

// Replay feeds records to apply in order. A record apply rejects is skipped
// and reported, but the version still moves past it so the aggregate stays
// aligned with the log.
func (r *Root) Replay(records []store.Event, apply func(store.Event) error) []*ReplayError {
	var skipped []*ReplayError
	for _, rec := range records {
		if err := apply(rec); err != nil {
			skipped = append(skipped, &ReplayError{Version: rec.Version, EventType: rec.EventType, Err: err})
		}
		r.version = rec.Version
	}
	return skipped
}
