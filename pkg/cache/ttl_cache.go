// Package cache provides a generic TTL cache combining LRU storage with
// singleflight to coalesce concurrent loads for the same key.
package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidTTL is returned when a cache is constructed with a non-positive TTL.
var ErrInvalidTTL = errors.New("cache: ttl must be positive")

type entry[V any] struct {
	value    V
	storedAt time.Time
}

type options struct {
	now func() time.Time
}

// Option configures a TTLCache.
type Option func(*options)

// WithClock sets the clock used to stamp and expire entries. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// TTLCache is a bounded cache whose entries expire a fixed duration after they were stored.
// An entry is fresh while now-storedAt < ttl; expired entries are dropped on read.
// Concurrent misses for the same key share one load. Failed loads are never stored.
// Keys are converted to strings internally via keyToString for LRU and singleflight.
type TTLCache[K comparable, V any] struct {
	lru         *lru.Cache[string, entry[V]]
	group       singleflight.Group
	keyToString func(K) string
	ttl         time.Duration
	now         func() time.Time

	// mu guards the generations and every write made by a finishing load.
	// generation is bumped by InvalidateAll and keyGens[k] by Invalidate(k); a load
	// started under older generations neither repopulates the cache nor accepts new waiters.
	mu         sync.Mutex
	generation uint64
	keyGens    map[string]uint64
}

// NewTTLCache creates a cache holding at most maxEntries values for ttl each.
func NewTTLCache[K comparable, V any](
	maxEntries int, ttl time.Duration, keyToString func(K) string, opts ...Option,
) (*TTLCache[K, V], error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	lruCache, err := lru.New[string, entry[V]](maxEntries)
	if err != nil {
		return nil, err
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &TTLCache[K, V]{
		lru:         lruCache,
		keyToString: keyToString,
		ttl:         ttl,
		now:         o.now,
		keyGens:     make(map[string]uint64),
	}, nil
}

// Get returns the fresh value for key. Expired entries are removed and reported as a miss.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	return c.get(c.keyToString(key))
}

func (c *TTLCache[K, V]) get(keyStr string) (V, bool) {
	e, ok := c.lru.Get(keyStr)
	if !ok {
		return zero[V](), false
	}

	if c.now().Sub(e.storedAt) >= c.ttl {
		c.lru.Remove(keyStr)

		return zero[V](), false
	}

	return e.value, true
}

// Set stores value for key, stamped with the current clock.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.lru.Add(c.keyToString(key), entry[V]{value: value, storedAt: c.now()})
}

// GetOrLoad returns the fresh value for key, loading it via load on miss.
// The bool result reports whether the value came from cache.
// On miss only one goroutine runs load for a key; others block and share its result.
func (c *TTLCache[K, V]) GetOrLoad(
	ctx context.Context, key K, load func(context.Context, K) (V, error),
) (V, bool, error) {
	keyStr := c.keyToString(key)
	if v, ok := c.get(keyStr); ok {
		return v, true, nil
	}

	gen, keyGen := c.epoch(keyStr)
	flightKey := keyStr + "\x00" + strconv.FormatUint(gen, 10) + "." + strconv.FormatUint(keyGen, 10)

	val, err, _ := c.group.Do(flightKey, func() (any, error) {
		loaded, loadErr := load(ctx, key)
		if loadErr != nil {
			return zero[V](), loadErr
		}

		c.mu.Lock()
		if c.generation == gen && c.keyGens[keyStr] == keyGen {
			c.lru.Add(keyStr, entry[V]{value: loaded, storedAt: c.now()})
		}
		c.mu.Unlock()

		return loaded, nil
	})
	if err != nil {
		return zero[V](), false, err
	}

	return val.(V), false, nil
}

func (c *TTLCache[K, V]) epoch(keyStr string) (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation, c.keyGens[keyStr]
}

func zero[V any]() (z V) { return z }

// Invalidate removes the entry for key. A load of key already in flight is not stored,
// and later callers start a fresh load instead of waiting on it.
func (c *TTLCache[K, V]) Invalidate(key K) {
	keyStr := c.keyToString(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.keyGens[keyStr]++
	c.lru.Remove(keyStr)
}

// InvalidateAll removes all entries. Loads in flight are neither stored nor joined afterwards.
func (c *TTLCache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	clear(c.keyGens)
	c.lru.Purge()
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *TTLCache[K, V]) Len() int {
	return c.lru.Len()
}
