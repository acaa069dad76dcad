package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/es-bank-account/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore is an in-memory EventLog that records calls and can inject failures
type MockEventStore struct {
	inner *store.MemoryEventStore

	mu sync.Mutex

	// For tracking calls in tests
	AppendCalls    []AppendCall
	AppendErr      error
	ReadErr        error
	AppendCallback func(ctx context.Context, aggregateID string, events []store.Event, expectedVersion int) error
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID     string
	Events          []store.Event
	ExpectedVersion int
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		inner:       store.NewMemoryEventStore(),
		AppendCalls: make([]AppendCall, 0),
	}
}

// Append records the call and stores the batch in memory
func (m *MockEventStore) Append(ctx context.Context, aggregateID string, events []store.Event, expectedVersion int) error {
	m.mu.Lock()
	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:     aggregateID,
		Events:          events,
		ExpectedVersion: expectedVersion,
	})
	callback, appendErr := m.AppendCallback, m.AppendErr
	m.mu.Unlock()

	// Use callback if provided
	if callback != nil {
		if err := callback(ctx, aggregateID, events, expectedVersion); err != nil {
			return err
		}
	}

	// Return error if set
	if appendErr != nil {
		return appendErr
	}
	return m.inner.Append(ctx, aggregateID, events, expectedVersion)
}

func (m *MockEventStore) Read(ctx context.Context, aggregateID string) ([]store.Event, error) {
	if err := m.readErr(); err != nil {
		return nil, err
	}
	return m.inner.Read(ctx, aggregateID)
}

func (m *MockEventStore) ReadFrom(ctx context.Context, aggregateID string, afterVersion int) ([]store.Event, error) {
	if err := m.readErr(); err != nil {
		return nil, err
	}
	return m.inner.ReadFrom(ctx, aggregateID, afterVersion)
}

func (m *MockEventStore) ReadUntil(ctx context.Context, aggregateID string, pointInTime time.Time) ([]store.Event, error) {
	if err := m.readErr(); err != nil {
		return nil, err
	}
	return m.inner.ReadUntil(ctx, aggregateID, pointInTime)
}

func (m *MockEventStore) ReadAll(ctx context.Context) ([]store.Event, error) {
	if err := m.readErr(); err != nil {
		return nil, err
	}
	return m.inner.ReadAll(ctx)
}

func (m *MockEventStore) readErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReadErr
}

// Calls returns a copy of the recorded Append calls
func (m *MockEventStore) Calls() []AppendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AppendCall, len(m.AppendCalls))
	copy(out, m.AppendCalls)
	return out
}

// Reset clears all events and recorded calls
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inner = store.NewMemoryEventStore()
	m.AppendCalls = make([]AppendCall, 0)
	m.AppendErr = nil
	m.ReadErr = nil
	m.AppendCallback = nil
}

// AddEvent appends a single raw event for testing, bypassing call tracking
func (m *MockEventStore) AddEvent(aggregateID, aggregateType, eventType string, data any, at time.Time) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	ctx := context.Background()
	existing, err := m.inner.Read(ctx, aggregateID)
	if err != nil {
		return err
	}
	version := len(existing) + 1
	event := store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     at,
		Version:       version,
	}
	return m.inner.Append(ctx, aggregateID, []store.Event{event}, version-1)
}

var _ store.EventLog = (*MockEventStore)(nil)
