package account

import (
	"github.com/example/es-bank-account/internal/domain/aggregate"
	"github.com/example/es-bank-account/internal/infrastructure/store"
)

// Store loads and saves accounts
type Store = aggregate.Store[*Account]

// NewStore wires the account type into an aggregate store
func NewStore(events store.EventLog, snapshots store.SnapshotStore, opts ...aggregate.Option) *Store {
	return aggregate.NewStore(AggregateType, events, snapshots, revive, opts...)
}
