package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/example/es-bank-account/internal/domain/aggregate"
	"github.com/example/es-bank-account/internal/infrastructure/store"
)

const AggregateType = "BankAccount"

var (
	// ErrValidation is the parent of every input validation error
	ErrValidation = errors.New("validation failed")

	ErrEmptyAccountID         = fmt.Errorf("%w: account id is required", ErrValidation)
	ErrEmptyAccountHolder     = fmt.Errorf("%w: account holder is required", ErrValidation)
	ErrNegativeInitialBalance = fmt.Errorf("%w: initial balance cannot be negative", ErrValidation)
	ErrInvalidAmount          = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrSameAccountTransfer    = fmt.Errorf("%w: cannot transfer to the same account", ErrValidation)
	ErrBalanceOverflow        = fmt.Errorf("%w: deposit would overflow the balance", ErrValidation)

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountExists     = errors.New("account already exists")
)

// Account is an event-sourced bank account. Balances are in minor units.
type Account struct {
	aggregate.Root

	id             string
	holder         string
	balance        int64
	createdAt      time.Time
	lastModifiedAt time.Time
}

type Option func(*Account)

// WithClock sets the time source used to stamp new events
func WithClock(now func() time.Time) Option {
	return func(a *Account) { a.SetClock(now) }
}

// Open creates a new account and records its AccountCreated event
func Open(id, holder string, initialBalance int64, opts ...Option) (*Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyAccountID
	}
	if strings.TrimSpace(holder) == "" {
		return nil, ErrEmptyAccountHolder
	}
	if initialBalance < 0 {
		return nil, ErrNegativeInitialBalance
	}

	a := &Account{id: id}
	for _, opt := range opts {
		opt(a)
	}

	err := a.raise(AccountCreated{
		occurred:       occurred{at: a.Now()},
		AccountID:      id,
		AccountHolder:  holder,
		InitialBalance: initialBalance,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// revive returns an empty account for replay; only the aggregate store uses it
func revive(id string) *Account {
	return &Account{id: id}
}

func (a *Account) GetID() string             { return a.id }
func (a *Account) ID() string                { return a.id }
func (a *Account) Holder() string            { return a.holder }
func (a *Account) Balance() int64            { return a.balance }
func (a *Account) CreatedAt() time.Time      { return a.createdAt }
func (a *Account) LastModifiedAt() time.Time { return a.lastModifiedAt }

// Deposit adds amount to the balance
func (a *Account) Deposit(amount int64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > math.MaxInt64-a.balance {
		return fmt.Errorf("%w: balance %d, deposit %d", ErrBalanceOverflow, a.balance, amount)
	}
	return a.raise(MoneyDeposited{
		occurred:    occurred{at: a.Now()},
		Amount:      amount,
		Description: description,
		NewBalance:  a.balance + amount,
	})
}

// Withdraw takes amount from the balance. The balance never goes negative.
func (a *Account) Withdraw(amount int64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > a.balance {
		return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, a.balance, amount)
	}
	return a.raise(MoneyWithdrawn{
		occurred:    occurred{at: a.Now()},
		Amount:      amount,
		Description: description,
		NewBalance:  a.balance - amount,
	})
}

// raise records e as pending and folds it into the state
func (a *Account) raise(e Event) error {
	if _, err := a.Record(a.id, AggregateType, e.EventType(), e, e.OccurredAt()); err != nil {
		return err
	}
	a.apply(e)
	return nil
}

// apply folds one event into the state
func (a *Account) apply(e Event) {
	switch e := e.(type) {
	case AccountCreated:
		a.id = e.AccountID
		a.holder = e.AccountHolder
		a.balance = e.InitialBalance
		a.createdAt = e.OccurredAt()
	case MoneyDeposited:
		a.balance = e.NewBalance
	case MoneyWithdrawn:
		a.balance = e.NewBalance
	default:
		// variants from newer writers are ignored
	}
	a.lastModifiedAt = e.OccurredAt()
}

// LoadFromHistory replays stored records in order. Records that cannot be
// decoded are skipped and returned.
func (a *Account) LoadFromHistory(records []store.Event) []*aggregate.ReplayError {
	return a.Replay(records, func(rec store.Event) error {
		e, err := DecodeEvent(rec)
		if err != nil {
			return err
		}
		a.apply(e)
		return nil
	})
}

type snapshotState struct {
	ID             string    `json:"id"`
	AccountHolder  string    `json:"account_holder"`
	Balance        int64     `json:"balance"`
	CreatedAt      time.Time `json:"created_at"`
	LastModifiedAt time.Time `json:"last_modified_at"`
	Version        int       `json:"version"`
}

// CreateSnapshot serializes the full state
func (a *Account) CreateSnapshot() (json.RawMessage, error) {
	return json.Marshal(snapshotState{
		ID:             a.id,
		AccountHolder:  a.holder,
		Balance:        a.balance,
		CreatedAt:      a.createdAt,
		LastModifiedAt: a.lastModifiedAt,
		Version:        a.GetVersion(),
	})
}

// RestoreSnapshot replaces the state with a snapshot taken at version
func (a *Account) RestoreSnapshot(state json.RawMessage, version int) error {
	var s snapshotState
	if err := json.Unmarshal(state, &s); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if s.ID != a.id {
		return fmt.Errorf("snapshot belongs to account %q, not %q", s.ID, a.id)
	}
	if s.Balance < 0 {
		return fmt.Errorf("snapshot has negative balance %d", s.Balance)
	}
	a.holder = s.AccountHolder
	a.balance = s.Balance
	a.createdAt = s.CreatedAt
	a.lastModifiedAt = s.LastModifiedAt
	a.SetVersion(version)
	return nil
}

var _ aggregate.Aggregate = (*Account)(nil)
