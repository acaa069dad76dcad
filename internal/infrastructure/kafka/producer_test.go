package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures []error
	written  []kafka.Message
	calls    int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if len(w.failures) > 0 {
		err := w.failures[0]
		w.failures = w.failures[1:]
		return err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProducer_PublishMarshalsWithKey(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, testConfig(), discardLogger())

	err := p.Publish(context.Background(), "acc-1", map[string]int{"amount": 100})
	require.NoError(t, err)

	require.Len(t, w.written, 1)
	assert.Equal(t, "acc-1", string(w.written[0].Key))

	var body map[string]int
	require.NoError(t, json.Unmarshal(w.written[0].Value, &body))
	assert.Equal(t, 100, body["amount"])
}

func TestProducer_RetriesTemporaryFailures(t *testing.T) {
	w := &fakeWriter{failures: []error{kafka.LeaderNotAvailable, kafka.RequestTimedOut}}
	p := newProducer(w, testConfig(), discardLogger())

	err := p.Publish(context.Background(), "acc-1", "payload")
	require.NoError(t, err)
	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.written, 1)
}

func TestProducer_DoesNotRetryPermanentFailures(t *testing.T) {
	w := &fakeWriter{failures: []error{kafka.MessageSizeTooLarge}}
	p := newProducer(w, testConfig(), discardLogger())

	err := p.Publish(context.Background(), "acc-1", "payload")
	require.Error(t, err)
	assert.Equal(t, 1, w.calls)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
	assert.True(t, isRetryable(kafka.NotLeaderForPartition))
	assert.False(t, isRetryable(kafka.TopicAuthorizationFailed))
	assert.True(t, isRetryable(errors.New("dial tcp: connection refused")))
}
