package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/example/es-bank-account/internal/domain/account"
	"github.com/example/es-bank-account/internal/infrastructure/store"
)

// Handler reports account activity from published events
type Handler struct {
	log *slog.Logger
}

// NewHandler creates a new notification handler
func NewHandler(log *slog.Logger) *Handler {
	return &Handler{log: log.With(slog.String("component", "notifier"))}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return h.Handle(ctx, event)
}

// Handle reports one committed record. Records of other aggregate types are
// ignored, and account records it cannot decode are logged and skipped.
func (h *Handler) Handle(ctx context.Context, rec store.Event) error {
	if rec.AggregateType != account.AggregateType {
		return nil
	}

	e, err := account.DecodeEvent(rec)
	if err != nil {
		h.log.WarnContext(ctx, "skipping account event",
			slog.String("account_id", rec.AggregateID),
			slog.Int("version", rec.Version),
			slog.String("event_type", rec.EventType),
			slog.Any("error", err),
		)
		return nil
	}

	log := h.log.With(
		slog.String("account_id", rec.AggregateID),
		slog.Int("version", rec.Version),
		slog.Time("at", e.OccurredAt()),
	)

	switch e := e.(type) {
	case account.AccountCreated:
		log.InfoContext(ctx, "account opened",
			slog.String("holder", e.AccountHolder),
			slog.Int64("initial_balance", e.InitialBalance),
		)
	case account.MoneyDeposited:
		log.InfoContext(ctx, "money deposited",
			slog.Int64("amount", e.Amount),
			slog.String("description", e.Description),
			slog.Int64("new_balance", e.NewBalance),
		)
	case account.MoneyWithdrawn:
		log.InfoContext(ctx, "money withdrawn",
			slog.Int64("amount", e.Amount),
			slog.String("description", e.Description),
			slog.Int64("new_balance", e.NewBalance),
		)
	}
	return nil
}
