package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RetryConfig controls how a failed broker write is retried
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// BreakerFailures opens the circuit after this many consecutive failed publishes; 0 disables it
	BreakerFailures int
	BreakerTimeout  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

type Producer struct {
	writer  messageWriter
	retrier retry.Retry[struct{}]
	breaker circuitbreaker.CircuitBreaker[struct{}]
	log     *slog.Logger
}

func NewProducer(brokers []string, topic string, cfg RetryConfig, log *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same aggregate, same partition
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(writer, cfg, log.With(slog.String("topic", topic)))
}

func newProducer(writer messageWriter, cfg RetryConfig, log *slog.Logger) *Producer {
	p := &Producer{writer: writer, log: log}
	if cfg.MaxAttempts > 0 {
		p.retrier = retry.New[struct{}](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      cfg.MaxDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   isRetryable,
		})
	}
	if cfg.BreakerFailures > 0 {
		threshold := uint32(cfg.BreakerFailures) // #nosec G115 -- bounded config value
		p.breaker = circuitbreaker.New[struct{}](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cfg.BreakerTimeout,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}
	return p
}

// Publish writes event as JSON keyed by key. Messages for one key keep their order.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	write := func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	}
	withRetry := func(ctx context.Context) (struct{}, error) {
		if p.retrier != nil {
			return p.retrier.Do(ctx, write)
		}
		return write(ctx)
	}

	if p.breaker != nil {
		_, err = p.breaker.Execute(ctx, withRetry)
	} else {
		_, err = withRetry(ctx)
	}
	if err != nil {
		p.log.Debug("publish failed", slog.String("key", key), slog.Any("error", err))
	}
	return err
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Don't retry context errors
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	// Network and broker-availability errors
	return true
}
