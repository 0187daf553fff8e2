// Package cache provides a bounded LRU cache with per-entry expiry, used
// by the query engine to memoize filtered shard reads. It wraps
// hashicorp's expirable LRU behind the exact construction and defaulting
// rules the engine depends on.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/voltgrid/receipt-engine/common"
)

const (
	// DefaultMaxSize bounds the number of live entries when the caller
	// passes zero.
	DefaultMaxSize = 100

	// DefaultTTL is applied when the caller passes a zero duration.
	DefaultTTL = 300 * time.Second
)

// Cache is a recency-ordered, TTL-bounded cache. A get on a present,
// unexpired entry refreshes its recency; a get on an expired entry
// misses. A set at capacity evicts the least recently used entry first.
// Safe for concurrent use.
type Cache[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
	ttl time.Duration
	max int
}

// Options configures a Cache. Zero values select the defaults.
type Options struct {
	MaxSize int
	TTL     time.Duration
}

// New creates a Cache. MaxSize must be positive once defaulted; a
// negative value is a configuration error.
func New[K comparable, V any](opts Options) (*Cache[K, V], error) {
	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	if maxSize <= 0 {
		return nil, &common.ConfigError{Param: "max_size", Msg: "must be positive"}
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < 0 {
		return nil, &common.ConfigError{Param: "ttl", Msg: "must be positive"}
	}

	return &Cache[K, V]{
		lru: expirable.NewLRU[K, V](maxSize, nil, ttl),
		ttl: ttl,
		max: maxSize,
	}, nil
}

// Get returns the value for key, refreshing its recency. An expired or
// absent entry returns ok=false.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// Set stores value under key with expiry now+TTL, evicting the least
// recently used entry if the cache is full.
func (c *Cache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}

// MaxSize returns the configured capacity.
func (c *Cache[K, V]) MaxSize() int {
	return c.max
}

// TTL returns the configured per-entry lifetime.
func (c *Cache[K, V]) TTL() time.Duration {
	return c.ttl
}
