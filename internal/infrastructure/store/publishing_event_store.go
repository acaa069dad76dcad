package store

import (
	"context"
	"log/slog"
	"time"
)

// Publisher delivers committed events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// PublishingEventLog forwards every committed batch to a Publisher.
// A failed publish is logged, never returned.
type PublishingEventLog struct {
	EventLog
	publisher Publisher
	timeout   time.Duration
	log       *slog.Logger
}

func NewPublishingEventLog(inner EventLog, publisher Publisher, timeout time.Duration, log *slog.Logger) *PublishingEventLog {
	return &PublishingEventLog{
		EventLog:  inner,
		publisher: publisher,
		timeout:   timeout,
		log:       log,
	}
}

// Append appends to the wrapped log and then publishes the batch in order
func (p *PublishingEventLog) Append(ctx context.Context, aggregateID string, events []Event, expectedVersion int) error {
	if err := p.EventLog.Append(ctx, aggregateID, events, expectedVersion); err != nil {
		return err
	}

	pubCtx := context.WithoutCancel(ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(pubCtx, p.timeout)
		defer cancel()
	}

	for _, e := range events {
		if err := p.publisher.Publish(pubCtx, e.AggregateID, e); err != nil {
			p.log.Error("failed to publish event",
				slog.String("aggregate_id", e.AggregateID),
				slog.Int("version", e.Version),
				slog.String("event_type", e.EventType),
				slog.Any("error", err),
			)
			// later events would arrive out of order
			return nil
		}
	}
	return nil
}

var _ EventLog = (*PublishingEventLog)(nil)
