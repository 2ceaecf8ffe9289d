// Package cache provides a content-addressed result cache with TTL
// expiry and at-most-one-concurrent-fetch-per-key semantics.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// Cache is a TTL cache keyed by normalized strings. Concurrent callers
// for the same key collapse into one in-flight fetch; callers for
// different keys never block each other. Failed fetches are propagated
// to every waiting caller and never cached, so the next caller retries.
//
// Storage is an expirable LRU, so entries expire lazily after the TTL
// and the oldest entries are evicted when the size bound is reached.
type Cache[T any] struct {
	entries *expirable.LRU[string, T]
	group   singleflight.Group
}

// New creates a cache with the given size bound and TTL.
func New[T any](maxEntries int, ttl time.Duration) *Cache[T] {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Cache[T]{
		entries: expirable.NewLRU[string, T](maxEntries, nil, ttl),
	}
}

// Get returns the unexpired cached value for key, if any.
func (c *Cache[T]) Get(key string) (T, bool) {
	return c.entries.Get(NormalizeKey(key))
}

// GetOrFetch returns the cached value for key, or runs fetchFn to
// produce it. At most one fetch per key is in flight at a time; callers
// arriving while a fetch is running wait for its result instead of
// duplicating work.
func (c *Cache[T]) GetOrFetch(ctx context.Context, key string, fetchFn func(ctx context.Context) (T, error)) (T, error) {
	key = NormalizeKey(key)

	if value, ok := c.entries.Get(key); ok {
		return value, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight lock: another caller may have
		// completed a fetch between our Get and Do.
		if value, ok := c.entries.Get(key); ok {
			return value, nil
		}

		value, err := fetchFn(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCacheFetch, err)
		}
		c.entries.Add(key, value)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// Put stores a value under key, overwriting any existing entry.
func (c *Cache[T]) Put(key string, value T) {
	c.entries.Add(NormalizeKey(key), value)
}

// Remove drops the entry for key, if present.
func (c *Cache[T]) Remove(key string) {
	c.entries.Remove(NormalizeKey(key))
}

// Len returns the number of live entries.
func (c *Cache[T]) Len() int {
	return c.entries.Len()
}

// NormalizeKey lower-cases a key and collapses internal whitespace so
// that trivially different spellings address the same entry.
func NormalizeKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), " ")
}
