package account

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func tickingClock() func() time.Time {
	now := t0
	return func() time.Time {
		current := now
		now = now.Add(time.Second)
		return current
	}
}

func openAccount(t *testing.T, balance int64) *Account {
	t.Helper()
	a, err := Open("acc-1", "Alice", balance, WithClock(tickingClock()))
	require.NoError(t, err)
	return a
}

func TestOpen(t *testing.T) {
	a := openAccount(t, 500)

	assert.Equal(t, "acc-1", a.ID())
	assert.Equal(t, "Alice", a.Holder())
	assert.Equal(t, int64(500), a.Balance())
	assert.Equal(t, t0, a.CreatedAt())
	assert.Equal(t, t0, a.LastModifiedAt())
	assert.Equal(t, 0, a.GetVersion())

	pending := a.PendingRecords()
	require.Len(t, pending, 1)
	assert.Equal(t, EventAccountCreated, pending[0].EventType)
	assert.Equal(t, AggregateType, pending[0].AggregateType)
	assert.Equal(t, "acc-1", pending[0].AggregateID)
	assert.Equal(t, 1, pending[0].Version)
	assert.JSONEq(t, `{"account_id":"acc-1","account_holder":"Alice","initial_balance":500}`, string(pending[0].Data))
}

func TestOpen_Validation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		holder  string
		balance int64
		want    error
	}{
		{"empty id", "", "Alice", 0, ErrEmptyAccountID},
		{"blank id", "   ", "Alice", 0, ErrEmptyAccountID},
		{"empty holder", "acc-1", "", 0, ErrEmptyAccountHolder},
		{"blank holder", "acc-1", "\t ", 0, ErrEmptyAccountHolder},
		{"negative balance", "acc-1", "Alice", -1, ErrNegativeInitialBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.id, tt.holder, tt.balance)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDeposit(t *testing.T) {
	a := openAccount(t, 0)

	require.NoError(t, a.Deposit(100, "salary"))

	assert.Equal(t, int64(100), a.Balance())
	assert.Equal(t, t0.Add(time.Second), a.LastModifiedAt())
	pending := a.PendingRecords()
	require.Len(t, pending, 2)
	assert.Equal(t, 2, pending[1].Version)
	assert.JSONEq(t, `{"amount":100,"description":"salary","new_balance":100}`, string(pending[1].Data))
}

func TestDeposit_InvalidAmount(t *testing.T) {
	a := openAccount(t, 0)

	for _, amount := range []int64{0, -10} {
		err := a.Deposit(amount, "")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Len(t, a.PendingRecords(), 1)
	assert.Equal(t, int64(0), a.Balance())
}

func TestWithdraw(t *testing.T) {
	a := openAccount(t, 100)

	require.NoError(t, a.Withdraw(30, "rent"))
	assert.Equal(t, int64(70), a.Balance())

	require.NoError(t, a.Withdraw(70, "everything"))
	assert.Equal(t, int64(0), a.Balance())
}

func TestWithdraw_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	a := openAccount(t, 50)
	before := a.LastModifiedAt()

	err := a.Withdraw(51, "too much")

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, int64(50), a.Balance())
	assert.Equal(t, before, a.LastModifiedAt())
	assert.Len(t, a.PendingRecords(), 1)
	assert.Equal(t, 0, a.GetVersion())
}

func TestWithdraw_InvalidAmount(t *testing.T) {
	a := openAccount(t, 50)
	assert.ErrorIs(t, a.Withdraw(0, ""), ErrInvalidAmount)
}

func TestBalanceNeverNegative(t *testing.T) {
	a := openAccount(t, 10)
	ops := []struct {
		deposit bool
		amount  int64
	}{
		{false, 5}, {false, 10}, {true, 3}, {false, 8}, {false, 1}, {true, 100}, {false, 99}, {false, 2},
	}
	for _, op := range ops {
		before := a.Balance()
		var err error
		if op.deposit {
			err = a.Deposit(op.amount, "")
		} else {
			err = a.Withdraw(op.amount, "")
		}
		if err != nil {
			assert.ErrorIs(t, err, ErrInsufficientFunds)
			assert.Equal(t, before, a.Balance())
		}
		assert.GreaterOrEqual(t, a.Balance(), int64(0))
	}
}

func TestDeposit_Overflow(t *testing.T) {
	a := openAccount(t, math.MaxInt64)

	err := a.Deposit(1, "overflow")
	assert.ErrorIs(t, err, ErrBalanceOverflow)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, int64(math.MaxInt64), a.Balance())
	assert.Len(t, a.PendingRecords(), 1)

	b := openAccount(t, 10)
	require.NoError(t, b.Deposit(math.MaxInt64-10, ""))
	assert.Equal(t, int64(math.MaxInt64), b.Balance())
	assert.ErrorIs(t, b.Deposit(math.MaxInt64, ""), ErrBalanceOverflow)
	assert.Len(t, b.PendingRecords(), 2)
}

func TestLoadFromHistory_Deterministic(t *testing.T) {
	src := openAccount(t, 10)
	require.NoError(t, src.Deposit(40, "a"))
	require.NoError(t, src.Withdraw(25, "b"))
	require.NoError(t, src.Deposit(5, "c"))
	records := src.PendingRecords()

	first := revive("acc-1")
	second := revive("acc-1")
	assert.Empty(t, first.LoadFromHistory(records))
	assert.Empty(t, second.LoadFromHistory(records))

	firstState, err := first.CreateSnapshot()
	require.NoError(t, err)
	secondState, err := second.CreateSnapshot()
	require.NoError(t, err)
	assert.Equal(t, string(firstState), string(secondState))

	assert.Equal(t, int64(30), first.Balance())
	assert.Equal(t, 4, first.GetVersion())
	assert.Equal(t, src.Holder(), first.Holder())
	assert.Equal(t, src.CreatedAt(), first.CreatedAt())
	assert.Equal(t, src.LastModifiedAt(), first.LastModifiedAt())
}

func TestLoadFromHistory_SkipsUnknownEvents(t *testing.T) {
	src := openAccount(t, 10)
	require.NoError(t, src.Deposit(5, ""))
	records := src.PendingRecords()
	records[1].EventType = "InterestAccrued"

	a := revive("acc-1")
	skipped := a.LoadFromHistory(records)

	require.Len(t, skipped, 1)
	assert.ErrorIs(t, skipped[0], ErrUnknownEventType)
	assert.Equal(t, int64(10), a.Balance())
	assert.Equal(t, 2, a.GetVersion())
}

func TestSnapshotEquivalence(t *testing.T) {
	src := openAccount(t, 0)
	for i := int64(1); i <= 6; i++ {
		require.NoError(t, src.Deposit(i*10, ""))
	}
	require.NoError(t, src.Withdraw(15, ""))
	records := src.PendingRecords()

	full := revive("acc-1")
	full.LoadFromHistory(records)

	for k := 1; k <= len(records); k++ {
		partial := revive("acc-1")
		partial.LoadFromHistory(records[:k])
		state, err := partial.CreateSnapshot()
		require.NoError(t, err)

		restored := revive("acc-1")
		require.NoError(t, restored.RestoreSnapshot(state, k))
		restored.LoadFromHistory(records[k:])

		assert.Equal(t, full.Balance(), restored.Balance(), "snapshot at %d", k)
		assert.Equal(t, full.GetVersion(), restored.GetVersion(), "snapshot at %d", k)
		assert.Equal(t, full.LastModifiedAt(), restored.LastModifiedAt(), "snapshot at %d", k)
		assert.Equal(t, full.CreatedAt(), restored.CreatedAt(), "snapshot at %d", k)
	}
}

func TestRestoreSnapshot_Rejects(t *testing.T) {
	a := revive("acc-1")

	assert.Error(t, a.RestoreSnapshot(json.RawMessage(`{`), 3))
	assert.Error(t, a.RestoreSnapshot(json.RawMessage(`{"id":"acc-2","balance":5}`), 3))
	assert.Error(t, a.RestoreSnapshot(json.RawMessage(`{"id":"acc-1","balance":-5}`), 3))
	assert.Equal(t, 0, a.GetVersion())
}
