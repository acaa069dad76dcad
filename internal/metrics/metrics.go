package metrics

import "time"

// Timer measures one operation. ObserveDuration records the time since it started.
type Timer interface {
	ObserveDuration()
}

// Metrics is what the aggregate store reports. Implementations must be safe for concurrent use.
type Metrics interface {
	LoadDuration(aggType string) Timer
	SaveDuration(aggType string) Timer
	EventsAppended(aggType string, count int)
	ConcurrencyConflict(aggType string)

	CacheHit(aggType string)
	CacheMiss(aggType string)

	SnapshotSaved(aggType string)
	// RecordDropped counts events and snapshots that could not be decoded; kind is "event" or "snapshot"
	RecordDropped(aggType, kind string)
}

type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

type nop struct{}

func (nop) LoadDuration(string) Timer    { return nopTimer{} }
func (nop) SaveDuration(string) Timer    { return nopTimer{} }
func (nop) EventsAppended(string, int)   {}
func (nop) ConcurrencyConflict(string)   {}
func (nop) CacheHit(string)              {}
func (nop) CacheMiss(string)             {}
func (nop) SnapshotSaved(string)         {}
func (nop) RecordDropped(string, string) {}

// Nop returns a Metrics that records nothing
func Nop() Metrics { return nop{} }

type observer interface {
	Observe(float64)
}

type timer struct {
	start time.Time
	o     observer
}

func newTimer(o observer) Timer {
	return &timer{start: time.Now(), o: o}
}

func (t *timer) ObserveDuration() {
	t.o.Observe(time.Since(t.start).Seconds())
}
