package aggregate

import (
	"sync"
	"time"
)

// Policy decides, after a successful save, whether to write a snapshot
type Policy interface {
	ShouldSnapshot(agg Aggregate) bool
}

// PolicyFunc adapts a function to Policy
type PolicyFunc func(agg Aggregate) bool

func (f PolicyFunc) ShouldSnapshot(agg Aggregate) bool { return f(agg) }

// Never is the policy that never snapshots
var Never Policy = PolicyFunc(func(Aggregate) bool { return false })

type eventCountPolicy struct {
	threshold int
}

// EveryNEvents snapshots when the version is a positive multiple of threshold.
// A threshold below 1 never fires.
func EveryNEvents(threshold int) Policy {
	return eventCountPolicy{threshold: threshold}
}

func (p eventCountPolicy) ShouldSnapshot(agg Aggregate) bool {
	if p.threshold < 1 {
		return false
	}
	v := agg.GetVersion()
	return v > 0 && v%p.threshold == 0
}

// IntervalPolicy snapshots an aggregate when at least interval has passed
// since its last snapshot. The first evaluation for an id always fires.
type IntervalPolicy struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func EveryInterval(interval time.Duration, now func() time.Time) *IntervalPolicy {
	if now == nil {
		now = time.Now
	}
	return &IntervalPolicy{
		interval: interval,
		now:      now,
		last:     make(map[string]time.Time),
	}
}

// ShouldSnapshot records the current time for the id whenever it returns true
func (p *IntervalPolicy) ShouldSnapshot(agg Aggregate) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	last, seen := p.last[agg.GetID()]
	if seen && now.Sub(last) < p.interval {
		return false
	}
	p.last[agg.GetID()] = now
	return true
}

type anyPolicy []Policy

// Any fires when at least one of policies fires. Every policy is evaluated
// on each call so stateful ones keep their bookkeeping current.
func Any(policies ...Policy) Policy {
	return anyPolicy(policies)
}

func (ps anyPolicy) ShouldSnapshot(agg Aggregate) bool {
	fire := false
	for _, p := range ps {
		if p.ShouldSnapshot(agg) {
			fire = true
		}
	}
	return fire
}
