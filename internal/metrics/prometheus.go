package metrics

import "github.com/prometheus/client_golang/prometheus"

var defaultBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}

type promMetrics struct {
	loadDuration         *prometheus.HistogramVec
	saveDuration         *prometheus.HistogramVec
	eventsAppended       *prometheus.CounterVec
	concurrencyConflicts *prometheus.CounterVec
	cacheHits            *prometheus.CounterVec
	cacheMisses          *prometheus.CounterVec
	snapshotsSaved       *prometheus.CounterVec
	recordsDropped       *prometheus.CounterVec
}

// NewPrometheus registers the store metrics with reg
func NewPrometheus(reg prometheus.Registerer) Metrics {
	m := &promMetrics{
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bank_aggregate_load_duration_seconds",
			Help:    "Aggregate load latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"aggregate_type"}),

		saveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bank_aggregate_save_duration_seconds",
			Help:    "Aggregate save latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"aggregate_type"}),

		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_events_appended_total",
			Help: "Total number of events appended",
		}, []string{"aggregate_type"}),

		concurrencyConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_concurrency_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts",
		}, []string{"aggregate_type"}),

		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_cache_hits_total",
			Help: "Total number of read cache hits",
		}, []string{"aggregate_type"}),

		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_cache_misses_total",
			Help: "Total number of read cache misses",
		}, []string{"aggregate_type"}),

		snapshotsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_snapshots_saved_total",
			Help: "Total number of snapshots written",
		}, []string{"aggregate_type"}),

		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bank_records_dropped_total",
			Help: "Total number of stored records skipped because they could not be decoded",
		}, []string{"aggregate_type", "kind"}),
	}

	reg.MustRegister(
		m.loadDuration,
		m.saveDuration,
		m.eventsAppended,
		m.concurrencyConflicts,
		m.cacheHits,
		m.cacheMisses,
		m.snapshotsSaved,
		m.recordsDropped,
	)

	return m
}

func (m *promMetrics) LoadDuration(aggType string) Timer {
	return newTimer(m.loadDuration.WithLabelValues(aggType))
}

func (m *promMetrics) SaveDuration(aggType string) Timer {
	return newTimer(m.saveDuration.WithLabelValues(aggType))
}

func (m *promMetrics) EventsAppended(aggType string, count int) {
	m.eventsAppended.WithLabelValues(aggType).Add(float64(count))
}

func (m *promMetrics) ConcurrencyConflict(aggType string) {
	m.concurrencyConflicts.WithLabelValues(aggType).Inc()
}

func (m *promMetrics) CacheHit(aggType string) {
	m.cacheHits.WithLabelValues(aggType).Inc()
}

func (m *promMetrics) CacheMiss(aggType string) {
	m.cacheMisses.WithLabelValues(aggType).Inc()
}

func (m *promMetrics) SnapshotSaved(aggType string) {
	m.snapshotsSaved.WithLabelValues(aggType).Inc()
}

func (m *promMetrics) RecordDropped(aggType, kind string) {
	m.recordsDropped.WithLabelValues(aggType, kind).Inc()
}

var _ Metrics = (*promMetrics)(nil)
