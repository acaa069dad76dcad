package aggregate

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/example/es-bank-account/internal/infrastructure/store"
)

// ErrNotFound is returned when neither a snapshot nor any event exists for an aggregate
var ErrNotFound = errors.New("aggregate not found")

// Aggregate defines the interface for event-sourced aggregates
type Aggregate interface {
	GetID() string
	GetVersion() int
	SetClock(now func() time.Time)

	PendingRecords() []store.Event
	MarkCommitted()

	// LoadFromHistory applies records in version order and reports the ones it had to skip
	LoadFromHistory(records []store.Event) []*ReplayError

	CreateSnapshot() (json.RawMessage, error)
	RestoreSnapshot(state json.RawMessage, version int) error
}
