package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/es-bank-account/internal/domain/account"
	"github.com/example/es-bank-account/internal/infrastructure/store"
)

type Handler struct {
	accounts *account.Store
	events   store.EventLog
	log      *slog.Logger
}

func NewHandler(accounts *account.Store, events store.EventLog, log *slog.Logger) *Handler {
	return &Handler{accounts: accounts, events: events, log: log}
}

// GetBalance returns the current state of an account
func (h *Handler) GetBalance(ctx context.Context, accountID string) (*BalanceResult, error) {
	a, err := h.accounts.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return BalanceOf(a), nil
}

// GetStateAt returns the account as it was at pointInTime
func (h *Handler) GetStateAt(ctx context.Context, accountID string, pointInTime time.Time) (*StateResult, error) {
	a, err := h.accounts.LoadAt(ctx, accountID, pointInTime)
	if err != nil {
		return nil, err
	}
	return &StateResult{
		BalanceResult: *BalanceOf(a),
		StateAt:       pointInTime,
	}, nil
}

// ListAccountIDs returns the id of every created account in creation order
func (h *Handler) ListAccountIDs(ctx context.Context) ([]string, error) {
	records, err := h.events.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, rec := range records {
		if rec.AggregateType != account.AggregateType || rec.EventType != account.EventAccountCreated {
			continue
		}
		if _, ok := seen[rec.AggregateID]; ok {
			continue
		}
		seen[rec.AggregateID] = struct{}{}
		ids = append(ids, rec.AggregateID)
	}
	h.log.Debug("listed accounts", slog.Int("count", len(ids)))
	return ids, nil
}
