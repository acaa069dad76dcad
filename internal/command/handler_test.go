package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/example/es-bank-account/internal/domain/account"
	"github.com/example/es-bank-account/internal/domain/aggregate"
	"github.com/example/es-bank-account/internal/infrastructure/store"
	"github.com/example/es-bank-account/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func stepClock() func() time.Time {
	now := t0
	return func() time.Time {
		current := now
		now = now.Add(time.Minute)
		return current
	}
}

func newTestHandler() (*Handler, *mocks.MockEventStore, *account.Store) {
	eventStore := mocks.NewMockEventStore()
	snapshots := mocks.NewMockSnapshotStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := stepClock()

	accounts := account.NewStore(eventStore, snapshots,
		aggregate.WithPolicy(aggregate.Never),
		aggregate.WithClock(clock),
		aggregate.WithLogger(log),
	)
	handler := NewHandler(accounts, WithClock(clock), WithLogger(log))
	return handler, eventStore, accounts
}

func createAccount(t *testing.T, h *Handler, id string, balance int64) {
	t.Helper()
	_, err := h.CreateAccount(context.Background(), CreateAccount{
		AccountID:      id,
		AccountHolder:  "Holder " + id,
		InitialBalance: balance,
	})
	require.NoError(t, err)
}

// ============================================
// Create Account Tests
// ============================================

func TestHandler_CreateAccount_Success(t *testing.T) {
	handler, eventStore, _ := newTestHandler()

	a, err := handler.CreateAccount(context.Background(), CreateAccount{
		AccountID:      "acc-1",
		AccountHolder:  "Alice",
		InitialBalance: 250,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(250), a.Balance())
	assert.Equal(t, 1, a.GetVersion())

	calls := eventStore.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0, calls[0].ExpectedVersion)
	require.Len(t, calls[0].Events, 1)
	assert.Equal(t, account.EventAccountCreated, calls[0].Events[0].EventType)
}

func TestHandler_CreateAccount_Validation(t *testing.T) {
	handler, eventStore, _ := newTestHandler()

	_, err := handler.CreateAccount(context.Background(), CreateAccount{AccountID: "acc-1"})

	assert.ErrorIs(t, err, account.ErrEmptyAccountHolder)
	assert.Empty(t, eventStore.Calls())
}

func TestHandler_CreateAccount_AlreadyExists(t *testing.T) {
	handler, eventStore, _ := newTestHandler()
	createAccount(t, handler, "acc-1", 0)

	_, err := handler.CreateAccount(context.Background(), CreateAccount{
		AccountID:     "acc-1",
		AccountHolder: "Mallory",
	})

	assert.ErrorIs(t, err, account.ErrAccountExists)
	assert.Len(t, eventStore.Calls(), 1)
}

// ============================================
// Deposit / Withdraw Tests
// ============================================

func TestHandler_DepositThenWithdraw(t *testing.T) {
	handler, _, accounts := newTestHandler()
	ctx := context.Background()
	createAccount(t, handler, "acc-1", 0)

	_, err := handler.Deposit(ctx, Deposit{AccountID: "acc-1", Amount: 100, Description: "salary"})
	require.NoError(t, err)
	a, err := handler.Withdraw(ctx, Withdraw{AccountID: "acc-1", Amount: 30, Description: "rent"})
	require.NoError(t, err)
	assert.Equal(t, int64(70), a.Balance())

	loaded, err := accounts.Load(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), loaded.Balance())
	assert.Equal(t, 3, loaded.GetVersion())
}

func TestHandler_Deposit_NotFound(t *testing.T) {
	handler, _, _ := newTestHandler()

	_, err := handler.Deposit(context.Background(), Deposit{AccountID: "missing", Amount: 10})

	assert.ErrorIs(t, err, aggregate.ErrNotFound)
}

func TestHandler_Withdraw_InsufficientFunds(t *testing.T) {
	handler, eventStore, _ := newTestHandler()
	createAccount(t, handler, "acc-1", 20)

	_, err := handler.Withdraw(context.Background(), Withdraw{AccountID: "acc-1", Amount: 21})

	assert.ErrorIs(t, err, account.ErrInsufficientFunds)
	assert.Len(t, eventStore.Calls(), 1)
}

func TestHandler_Withdraw_Conflict(t *testing.T) {
	handler, eventStore, _ := newTestHandler()
	createAccount(t, handler, "acc-1", 20)

	eventStore.AppendCallback = func(_ context.Context, _ string, _ []store.Event, _ int) error {
		return store.ErrConcurrencyConflict
	}
	_, err := handler.Withdraw(context.Background(), Withdraw{AccountID: "acc-1", Amount: 5})

	assert.ErrorIs(t, err, store.ErrConcurrencyConflict)
}

// ============================================
// Transfer Tests
// ============================================

func TestHandler_Transfer_Success(t *testing.T) {
	handler, eventStore, accounts := newTestHandler()
	ctx := context.Background()
	createAccount(t, handler, "src", 100)
	createAccount(t, handler, "dst", 5)

	err := handler.Transfer(ctx, Transfer{FromAccountID: "src", ToAccountID: "dst", Amount: 40, Description: "lunch"})
	require.NoError(t, err)

	src, err := accounts.Load(ctx, "src")
	require.NoError(t, err)
	dst, err := accounts.Load(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, int64(60), src.Balance())
	assert.Equal(t, int64(45), dst.Balance())

	calls := eventStore.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "src", calls[2].AggregateID)
	assert.Equal(t, "dst", calls[3].AggregateID)
	assert.Contains(t, string(calls[2].Events[0].Data), `"description":"transfer to dst: lunch"`)
	assert.Contains(t, string(calls[3].Events[0].Data), `"description":"transfer from src: lunch"`)
}

func TestHandler_Transfer_SameAccount(t *testing.T) {
	handler, _, _ := newTestHandler()
	createAccount(t, handler, "acc-1", 100)

	err := handler.Transfer(context.Background(), Transfer{FromAccountID: "acc-1", ToAccountID: "acc-1", Amount: 1})

	assert.ErrorIs(t, err, account.ErrSameAccountTransfer)
	assert.ErrorIs(t, err, account.ErrValidation)
}

func TestHandler_Transfer_InsufficientFundsWritesNothing(t *testing.T) {
	handler, eventStore, _ := newTestHandler()
	createAccount(t, handler, "src", 10)
	createAccount(t, handler, "dst", 0)

	err := handler.Transfer(context.Background(), Transfer{FromAccountID: "src", ToAccountID: "dst", Amount: 11})

	assert.ErrorIs(t, err, account.ErrInsufficientFunds)
	assert.Len(t, eventStore.Calls(), 2)
}

func TestHandler_Transfer_TargetOverflowWritesNothing(t *testing.T) {
	handler, eventStore, _ := newTestHandler()
	createAccount(t, handler, "src", 10)
	createAccount(t, handler, "dst", math.MaxInt64)

	err := handler.Transfer(context.Background(), Transfer{FromAccountID: "src", ToAccountID: "dst", Amount: 5})

	assert.ErrorIs(t, err, account.ErrBalanceOverflow)
	assert.Len(t, eventStore.Calls(), 2)
}

func TestHandler_Transfer_MissingTarget(t *testing.T) {
	handler, eventStore, _ := newTestHandler()
	createAccount(t, handler, "src", 10)

	err := handler.Transfer(context.Background(), Transfer{FromAccountID: "src", ToAccountID: "ghost", Amount: 5})

	assert.ErrorIs(t, err, aggregate.ErrNotFound)
	assert.Len(t, eventStore.Calls(), 1)
}

func TestHandler_Transfer_TargetSaveFails(t *testing.T) {
	handler, eventStore, accounts := newTestHandler()
	ctx := context.Background()
	createAccount(t, handler, "src", 100)
	createAccount(t, handler, "dst", 0)

	boom := errors.New("disk full")
	eventStore.AppendCallback = func(_ context.Context, aggregateID string, _ []store.Event, _ int) error {
		if aggregateID == "dst" {
			return boom
		}
		return nil
	}

	err := handler.Transfer(ctx, Transfer{FromAccountID: "src", ToAccountID: "dst", Amount: 25})
	assert.ErrorIs(t, err, boom)

	src, err := accounts.Load(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, int64(75), src.Balance())
}

func TestTransferNote(t *testing.T) {
	assert.Equal(t, "transfer to b", transferNote("transfer to", "b", ""))
	assert.Equal(t, "transfer from a: rent", transferNote("transfer from", "a", "rent"))
}
