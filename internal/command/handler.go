package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/es-bank-account/internal/domain/account"
	"golang.org/x/sync/errgroup"
)

type Handler struct {
	accounts *account.Store
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Handler)

// WithClock sets the time source stamped on new events
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

func NewHandler(accounts *account.Store, opts ...Option) *Handler {
	h := &Handler{
		accounts: accounts,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateAccount opens a new account. It fails with account.ErrAccountExists
// when the id already has history.
func (h *Handler) CreateAccount(ctx context.Context, cmd CreateAccount) (*account.Account, error) {
	a, err := account.Open(cmd.AccountID, cmd.AccountHolder, cmd.InitialBalance, account.WithClock(h.now))
	if err != nil {
		return nil, err
	}

	exists, err := h.accounts.Exists(ctx, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", account.ErrAccountExists, cmd.AccountID)
	}

	if err := h.accounts.Save(ctx, a); err != nil {
		return nil, err
	}

	h.log.Info("account created",
		slog.String("account_id", a.ID()),
		slog.Int64("initial_balance", cmd.InitialBalance),
	)
	return a, nil
}

// Deposit adds money to an existing account
func (h *Handler) Deposit(ctx context.Context, cmd Deposit) (*account.Account, error) {
	a, err := h.accounts.Load(ctx, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	if err := a.Deposit(cmd.Amount, cmd.Description); err != nil {
		return nil, err
	}
	if err := h.accounts.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Withdraw takes money from an existing account
func (h *Handler) Withdraw(ctx context.Context, cmd Withdraw) (*account.Account, error) {
	a, err := h.accounts.Load(ctx, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	if err := a.Withdraw(cmd.Amount, cmd.Description); err != nil {
		return nil, err
	}
	if err := h.accounts.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Transfer moves money between two accounts. The two saves are separate
// appends: if saving the target fails, the source withdrawal stays committed
// and the error is returned to the caller.
func (h *Handler) Transfer(ctx context.Context, cmd Transfer) error {
	if cmd.FromAccountID == cmd.ToAccountID {
		return account.ErrSameAccountTransfer
	}

	var from, to *account.Account
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := h.accounts.Load(gctx, cmd.FromAccountID)
		from = a
		return err
	})
	g.Go(func() error {
		a, err := h.accounts.Load(gctx, cmd.ToAccountID)
		to = a
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := from.Withdraw(cmd.Amount, transferNote("transfer to", cmd.ToAccountID, cmd.Description)); err != nil {
		return err
	}
	if err := to.Deposit(cmd.Amount, transferNote("transfer from", cmd.FromAccountID, cmd.Description)); err != nil {
		return err
	}

	if err := h.accounts.Save(ctx, from); err != nil {
		return err
	}
	if err := h.accounts.Save(ctx, to); err != nil {
		h.log.Error("transfer left unbalanced",
			slog.String("from", cmd.FromAccountID),
			slog.String("to", cmd.ToAccountID),
			slog.Int64("amount", cmd.Amount),
			slog.Any("error", err),
		)
		return fmt.Errorf("withdrawn from %s but deposit to %s failed: %w", cmd.FromAccountID, cmd.ToAccountID, err)
	}

	h.log.Info("transfer completed",
		slog.String("from", cmd.FromAccountID),
		slog.String("to", cmd.ToAccountID),
		slog.Int64("amount", cmd.Amount),
	)
	return nil
}

func transferNote(prefix, counterpart, description string) string {
	note := prefix + " " + counterpart
	if description != "" {
		note += ": " + description
	}
	return note
}
