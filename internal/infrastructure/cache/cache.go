package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long an entry survives without being read
const DefaultTTL = 5 * time.Minute

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory cache with sliding expiration: every hit pushes the
// entry's expiry another TTL into the future.
type Cache[V any] struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]map[string]*entry[V] // collection -> id -> entry
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		ttl:  ttl,
		now:  o.now,
		data: make(map[string]map[string]*entry[V]),
	}
}

// Get returns a live entry and slides its expiry
func (c *Cache[V]) Get(collection, id string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.data[collection][id]
	if !ok {
		return zero, false
	}
	now := c.now()
	if !now.Before(e.expiresAt) {
		delete(c.data[collection], id)
		return zero, false
	}
	e.expiresAt = now.Add(c.ttl)
	return e.value, true
}

// Set stores value, replacing any previous entry
func (c *Cache[V]) Set(collection, id string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data[collection] == nil {
		c.data[collection] = make(map[string]*entry[V])
	}
	c.data[collection][id] = &entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// SetIf stores value unless a live entry exists and replace(current) is false.
// It reports whether value was stored.
func (c *Cache[V]) SetIf(collection, id string, value V, replace func(current V) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.data[collection][id]; ok && now.Before(e.expiresAt) && !replace(e.value) {
		return false
	}
	if c.data[collection] == nil {
		c.data[collection] = make(map[string]*entry[V])
	}
	c.data[collection][id] = &entry[V]{value: value, expiresAt: now.Add(c.ttl)}
	return true
}

// Delete removes an entry
func (c *Cache[V]) Delete(collection, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data[collection] != nil {
		delete(c.data[collection], id)
	}
}

// Len returns the number of stored entries, expired ones included
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, items := range c.data {
		n += len(items)
	}
	return n
}

// Purge drops expired entries and returns how many were removed
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for collection, items := range c.data {
		for id, e := range items {
			if !now.Before(e.expiresAt) {
				delete(items, id)
				removed++
			}
		}
		if len(items) == 0 {
			delete(c.data, collection)
		}
	}
	return removed
}

// RunJanitor purges expired entries every interval until ctx is done
func (c *Cache[V]) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Purge()
		}
	}
}
