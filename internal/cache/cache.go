// Package cache provides the in-process response cache used for schemas,
// relation option lists, single entities and entity lists.
//
// Entries are replaced wholesale on Set and never mutated in place. By
// default a present entry is a hit regardless of its age: age is tracked for
// Stats and Age only. WithEnforcedMaxAge turns age into real expiry.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Entry is a cached value and the time it was stored.
type Entry[T any] struct {
	Data      T
	Timestamp time.Time
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits        uint64        `json:"hits"`
	Misses      uint64        `json:"misses"`
	Expirations uint64        `json:"expirations"`
	Entries     int           `json:"entries"`
	MaxAge      time.Duration `json:"max_age"`
	Enforced    bool          `json:"enforced"`
	OldestAge   time.Duration `json:"oldest_age"`
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	maxAge  time.Duration
	enforce bool
	now     func() time.Time
}

// WithMaxAge records the advisory maximum age reported by Stats. Entries
// older than d are still served.
func WithMaxAge(d time.Duration) Option {
	return func(c *config) { c.maxAge = d }
}

// WithEnforcedMaxAge makes entries older than d misses. A non-positive d
// leaves expiry disabled.
func WithEnforcedMaxAge(d time.Duration) Option {
	return func(c *config) {
		c.maxAge = d
		c.enforce = d > 0
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// Cache is a concurrency-safe keyed store of Entry[T].
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[T]
	cfg     config

	hits        uint64
	misses      uint64
	expirations uint64
}

// New returns an empty cache.
func New[T any](opts ...Option) *Cache[T] {
	cfg := config{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache[T]{
		entries: make(map[string]Entry[T]),
		cfg:     cfg,
	}
}

// Get returns the value stored under key.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.cfg.enforce && c.cfg.now().Sub(e.Timestamp) > c.cfg.maxAge {
		delete(c.entries, key)
		c.expirations++
		c.misses++
		return zero, false
	}
	c.hits++
	return e.Data, true
}

// Set stores value under key, replacing any previous entry. The stored
// timestamp never moves backwards for a key, even if the clock does.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.cfg.now()
	if prev, ok := c.entries[key]; ok && ts.Before(prev.Timestamp) {
		ts = prev.Timestamp
	}
	c.entries[key] = Entry[T]{Data: value, Timestamp: ts}
}

// Invalidate drops key.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidatePrefix drops every key starting with prefix and reports how
// many were removed.
func (c *Cache[T]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear drops every entry. Counters are kept.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry[T])
}

// Age reports how long ago key was stored.
func (c *Cache[T]) Age(key string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	return c.cfg.now().Sub(e.Timestamp), true
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Expirations: c.expirations,
		Entries:     len(c.entries),
		MaxAge:      c.cfg.maxAge,
		Enforced:    c.cfg.enforce,
	}
	now := c.cfg.now()
	for _, e := range c.entries {
		if age := now.Sub(e.Timestamp); age > s.OldestAge {
			s.OldestAge = age
		}
	}
	return s
}
