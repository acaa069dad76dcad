package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/es-bank-account/internal/infrastructure/store"
)

const (
	EventAccountCreated = "AccountCreated"
	EventMoneyDeposited = "MoneyDeposited"
	EventMoneyWithdrawn = "MoneyWithdrawn"
)

var (
	// ErrUnknownEventType is returned by DecodeEvent for a discriminator this build does not know
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrUndecodableEvent is returned by DecodeEvent when the payload does not match its type
	ErrUndecodableEvent = errors.New("undecodable event")
)

// Event is one of AccountCreated, MoneyDeposited or MoneyWithdrawn.
// The set is closed: only this package can add variants.
type Event interface {
	EventType() string
	OccurredAt() time.Time
	isAccountEvent()
}

// occurred carries the record timestamp; it is stored on the record, not in the payload
type occurred struct {
	at time.Time
}

func (o occurred) OccurredAt() time.Time { return o.at }
func (occurred) isAccountEvent()         {}

type AccountCreated struct {
	occurred
	AccountID      string `json:"account_id"`
	AccountHolder  string `json:"account_holder"`
	InitialBalance int64  `json:"initial_balance"`
}

type MoneyDeposited struct {
	occurred
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	NewBalance  int64  `json:"new_balance"`
}

type MoneyWithdrawn struct {
	occurred
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	NewBalance  int64  `json:"new_balance"`
}

func (AccountCreated) EventType() string { return EventAccountCreated }
func (MoneyDeposited) EventType() string { return EventMoneyDeposited }
func (MoneyWithdrawn) EventType() string { return EventMoneyWithdrawn }

// DecodeEvent turns a stored record back into an Event
func DecodeEvent(rec store.Event) (Event, error) {
	at := occurred{at: rec.Timestamp}
	switch rec.EventType {
	case EventAccountCreated:
		return decode(rec, &AccountCreated{occurred: at})
	case EventMoneyDeposited:
		return decode(rec, &MoneyDeposited{occurred: at})
	case EventMoneyWithdrawn:
		return decode(rec, &MoneyWithdrawn{occurred: at})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, rec.EventType)
}

func decode[E Event](rec store.Event, into *E) (Event, error) {
	if err := json.Unmarshal(rec.Data, into); err != nil {
		return nil, fmt.Errorf("%w: %s version %d: %v", ErrUndecodableEvent, rec.EventType, rec.Version, err)
	}
	return *into, nil
}
