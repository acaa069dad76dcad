package account

import (
	"testing"
	"time"

	"github.com/example/es-bank-account/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	e, err := DecodeEvent(store.Event{
		EventType: EventMoneyWithdrawn,
		Data:      []byte(`{"amount":30,"description":"rent","new_balance":70}`),
		Timestamp: at,
		Version:   3,
	})
	require.NoError(t, err)

	w, ok := e.(MoneyWithdrawn)
	require.True(t, ok)
	assert.Equal(t, int64(30), w.Amount)
	assert.Equal(t, "rent", w.Description)
	assert.Equal(t, int64(70), w.NewBalance)
	assert.Equal(t, at, w.OccurredAt())
}

func TestDecodeEvent_Created(t *testing.T) {
	e, err := DecodeEvent(store.Event{
		EventType: EventAccountCreated,
		Data:      []byte(`{"account_id":"acc-1","account_holder":"Alice","initial_balance":0}`),
	})
	require.NoError(t, err)
	assert.Equal(t, AccountCreated{AccountID: "acc-1", AccountHolder: "Alice"}, e)
}

func TestDecodeEvent_Failures(t *testing.T) {
	_, err := DecodeEvent(store.Event{EventType: "AccountClosed", Data: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = DecodeEvent(store.Event{EventType: EventMoneyDeposited, Data: []byte(`{"amount":"ten"}`)})
	assert.ErrorIs(t, err, ErrUndecodableEvent)
}
