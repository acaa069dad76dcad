package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/es-bank-account/internal/infrastructure/cache"
	"github.com/example/es-bank-account/internal/infrastructure/store"
	"github.com/example/es-bank-account/internal/metrics"
	"github.com/google/uuid"
)

type options struct {
	policy            Policy
	cache             *cache.Cache[*store.Snapshot]
	invalidateOnWrite bool
	now               func() time.Time
	log               *slog.Logger
	metrics           metrics.Metrics
}

type Option func(*options)

// WithPolicy sets the snapshot policy. The default snapshots every
// store.DefaultSnapshotThreshold events.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithCache enables the current-state read cache. It holds snapshot values,
// never live aggregates, so callers cannot mutate cached state.
func WithCache(c *cache.Cache[*store.Snapshot]) Option {
	return func(o *options) { o.cache = c }
}

// WithInvalidateOnWrite drops the cache entry after a save instead of refreshing it
func WithInvalidateOnWrite() Option {
	return func(o *options) { o.invalidateOnWrite = true }
}

// WithClock sets the time source for snapshots and revived aggregates
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithMetrics(m metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Store loads and saves one aggregate type on top of an event log and a
// snapshot store.
type Store[T Aggregate] struct {
	aggregateType string
	events        store.EventLog
	snapshots     store.SnapshotStore
	revive        func(id string) T
	opts          options
	log           *slog.Logger
}

// NewStore creates a Store. revive must return an empty aggregate with the
// given id, ready for snapshot restore and replay.
func NewStore[T Aggregate](
	aggregateType string,
	events store.EventLog,
	snapshots store.SnapshotStore,
	revive func(id string) T,
	opts ...Option,
) *Store[T] {
	o := options{
		policy:  EveryNEvents(store.DefaultSnapshotThreshold),
		now:     time.Now,
		log:     slog.Default(),
		metrics: metrics.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		aggregateType: aggregateType,
		events:        events,
		snapshots:     snapshots,
		revive:        revive,
		opts:          o,
		log:           o.log.With(slog.String("aggregate_store", aggregateType)),
	}
}

func (s *Store[T]) newAggregate(id string) T {
	agg := s.revive(id)
	agg.SetClock(s.opts.now)
	return agg
}

func (s *Store[T]) logFor(id string) *slog.Logger {
	return s.log.With(slog.Group("agg",
		slog.String("type", s.aggregateType),
		slog.String("id", id),
	))
}

// Load returns the current state of the aggregate, from the cache when possible
func (s *Store[T]) Load(ctx context.Context, id string) (T, error) {
	timer := s.opts.metrics.LoadDuration(s.aggregateType)
	defer timer.ObserveDuration()

	var zero T
	log := s.logFor(id)

	if agg, ok := s.fromCache(log, id); ok {
		return agg, nil
	}

	snap, err := s.snapshots.GetLatest(ctx, s.aggregateType, id)
	if err != nil {
		return zero, fmt.Errorf("failed to get snapshot: %w", err)
	}

	agg, restored := s.restore(log, id, snap)

	var records []store.Event
	if restored {
		records, err = s.events.ReadFrom(ctx, id, snap.Version)
	} else {
		records, err = s.events.Read(ctx, id)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to read events: %w", err)
	}

	if !restored && len(records) == 0 {
		return zero, fmt.Errorf("%w: %s %s", ErrNotFound, s.aggregateType, id)
	}

	s.replay(log, agg, records)
	log.Debug("loaded",
		slog.Bool("from_snapshot", restored),
		slog.Int("replayed", len(records)),
		slog.Int("version", agg.GetVersion()),
	)

	s.cacheState(log, agg)
	return agg, nil
}

// LoadAt rebuilds the aggregate as it was at pointInTime. It never touches the cache.
func (s *Store[T]) LoadAt(ctx context.Context, id string, pointInTime time.Time) (T, error) {
	timer := s.opts.metrics.LoadDuration(s.aggregateType)
	defer timer.ObserveDuration()

	var zero T
	log := s.logFor(id).With(slog.Time("point_in_time", pointInTime))

	snap, err := s.snapshots.GetAt(ctx, s.aggregateType, id, pointInTime)
	if err != nil {
		return zero, fmt.Errorf("failed to get snapshot: %w", err)
	}

	agg, restored := s.restore(log, id, snap)

	records, err := s.events.ReadUntil(ctx, id, pointInTime)
	if err != nil {
		return zero, fmt.Errorf("failed to read events: %w", err)
	}
	if restored {
		records = after(records, snap.Version)
	}

	if !restored && len(records) == 0 {
		return zero, fmt.Errorf("%w: %s %s at %s", ErrNotFound, s.aggregateType, id, pointInTime.Format(time.RFC3339Nano))
	}

	s.replay(log, agg, records)
	return agg, nil
}

// Save appends the aggregate's pending records, expecting the log to still be
// at agg.GetVersion(). On ErrConcurrencyConflict the aggregate keeps its
// pending records; the caller decides whether to reload and retry.
func (s *Store[T]) Save(ctx context.Context, agg T) error {
	pending := agg.PendingRecords()
	if len(pending) == 0 {
		return nil
	}

	timer := s.opts.metrics.SaveDuration(s.aggregateType)
	defer timer.ObserveDuration()

	id := agg.GetID()
	log := s.logFor(id)
	expected := agg.GetVersion()

	if err := s.events.Append(ctx, id, pending, expected); err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			s.opts.metrics.ConcurrencyConflict(s.aggregateType)
			if s.opts.cache != nil {
				s.opts.cache.Delete(s.aggregateType, id)
			}
			log.Info("concurrency conflict", slog.Int("expected_version", expected))
		}
		return err
	}

	agg.MarkCommitted()
	s.opts.metrics.EventsAppended(s.aggregateType, len(pending))
	log.Debug("saved",
		slog.Int("num_events", len(pending)),
		slog.Int("version", agg.GetVersion()),
	)

	if s.opts.policy.ShouldSnapshot(agg) {
		// the events are durable; a failed snapshot only costs replay time later
		if err := s.saveSnapshot(ctx, agg); err != nil {
			log.Error("failed to save snapshot", slog.Int("version", agg.GetVersion()), slog.Any("error", err))
		}
	}

	if s.opts.cache != nil {
		if s.opts.invalidateOnWrite {
			s.opts.cache.Delete(s.aggregateType, id)
		} else {
			s.cacheState(log, agg)
		}
	}
	return nil
}

// Exists reports whether the aggregate has a snapshot or any event
func (s *Store[T]) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store[T]) saveSnapshot(ctx context.Context, agg T) error {
	state, err := agg.CreateSnapshot()
	if err != nil {
		return err
	}
	snap := &store.Snapshot{
		ID:           uuid.New().String(),
		AggregateID:  agg.GetID(),
		SnapshotType: s.aggregateType,
		Version:      agg.GetVersion(),
		State:        state,
		CreatedAt:    s.opts.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	s.opts.metrics.SnapshotSaved(s.aggregateType)
	s.logFor(agg.GetID()).Debug("snapshot saved", slog.Int("version", snap.Version))
	return nil
}

// restore builds an aggregate from snap. A snapshot that cannot be restored
// is treated as absent.
func (s *Store[T]) restore(log *slog.Logger, id string, snap *store.Snapshot) (T, bool) {
	agg := s.newAggregate(id)
	if snap == nil {
		return agg, false
	}
	if err := agg.RestoreSnapshot(snap.State, snap.Version); err != nil {
		s.opts.metrics.RecordDropped(s.aggregateType, "snapshot")
		log.Warn("ignoring unreadable snapshot",
			slog.Int("version", snap.Version),
			slog.Any("error", err),
		)
		return s.newAggregate(id), false
	}
	return agg, true
}

func (s *Store[T]) replay(log *slog.Logger, agg T, records []store.Event) {
	for _, skipped := range agg.LoadFromHistory(records) {
		s.opts.metrics.RecordDropped(s.aggregateType, "event")
		log.Warn("dropped event during replay",
			slog.Int("version", skipped.Version),
			slog.String("event_type", skipped.EventType),
			slog.Any("error", skipped.Err),
		)
	}
}

func (s *Store[T]) fromCache(log *slog.Logger, id string) (T, bool) {
	var zero T
	if s.opts.cache == nil {
		return zero, false
	}
	snap, ok := s.opts.cache.Get(s.aggregateType, id)
	if !ok {
		s.opts.metrics.CacheMiss(s.aggregateType)
		return zero, false
	}
	agg := s.newAggregate(id)
	if err := agg.RestoreSnapshot(snap.State, snap.Version); err != nil {
		s.opts.cache.Delete(s.aggregateType, id)
		s.opts.metrics.CacheMiss(s.aggregateType)
		log.Warn("evicting unreadable cache entry", slog.Any("error", err))
		return zero, false
	}
	s.opts.metrics.CacheHit(s.aggregateType)
	return agg, true
}

func (s *Store[T]) cacheState(log *slog.Logger, agg T) {
	if s.opts.cache == nil {
		return
	}
	state, err := agg.CreateSnapshot()
	if err != nil {
		log.Warn("not caching aggregate", slog.Any("error", err))
		s.opts.cache.Delete(s.aggregateType, agg.GetID())
		return
	}
	version := agg.GetVersion()
	// a slow load must not replace state cached by a newer save
	s.opts.cache.SetIf(s.aggregateType, agg.GetID(), &store.Snapshot{
		AggregateID:  agg.GetID(),
		SnapshotType: s.aggregateType,
		Version:      version,
		State:        state,
	}, func(current *store.Snapshot) bool {
		return current.Version < version
	})
}

// after keeps the records with a version greater than v
func after(records []store.Event, v int) []store.Event {
	out := records[:0:0]
	for _, rec := range records {
		if rec.Version > v {
			out = append(out, rec)
		}
	}
	return out
}
