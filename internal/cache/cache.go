package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultTTL      = 15 * time.Second
	DefaultCapacity = 1024
)

type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Put(ctx context.Context, key string, value V)
}

// HistoryKey builds the key for a health-history lookup. A nil worker means all workers.
func HistoryKey(workerID *int64, days int) string {
	subject := "all"
	if workerID != nil {
		subject = strconv.FormatInt(*workerID, 10)
	}
	return subject + ":" + strconv.Itoa(days)
}

type entry[V any] struct {
	value  V
	stored time.Time
}

// TTL is an in-process cache whose entries are fresh while younger than ttl.
type TTL[V any] struct {
	mu       sync.Mutex
	items    map[string]entry[V]
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewTTL builds a cache. ttl <= 0 falls back to DefaultTTL; capacity 0 disables eviction.
func NewTTL[V any](ttl time.Duration, capacity int, opts ...Option) *TTL[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity < 0 {
		capacity = 0
	}
	return &TTL[V]{
		items:    make(map[string]entry[V]),
		ttl:      ttl,
		capacity: capacity,
		now:      o.now,
	}
}

func (c *TTL[V]) Get(_ context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || c.now().Sub(e.stored) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *TTL[V]) Put(_ context.Context, key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, stored: c.now()}
	if c.capacity > 0 && len(c.items) > c.capacity {
		c.evictOldest()
	}
}

func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *TTL[V]) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.items {
		if !found || e.stored.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.stored, true
		}
	}
	if found {
		delete(c.items, oldestKey)
	}
}
