package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"calbrief/internal/metrics"
	"calbrief/pkg/logging"
)

const (
	// DefaultTTL is used when Options.TTL is not positive.
	DefaultTTL = 5 * time.Minute

	// DefaultPrefetchLimit bounds concurrent neighbor fetches per prefetch round.
	DefaultPrefetchLimit = 2
)

// FetchFunc loads the value for key from the backing source.
type FetchFunc[V any] func(ctx context.Context, key string) (V, error)

// Options configures a Cache.
type Options[V any] struct {
	// TTL is how long a fetched value stays fresh.
	TTL time.Duration

	// Neighbors returns the keys to prefetch after a successful miss-fill
	// of key. Nil disables prefetch.
	Neighbors func(key string) []string

	// Clone copies values on the way in and out so callers never share
	// memory with cached entries. Nil means values are returned as-is.
	Clone func(V) V

	// Now overrides the clock, for tests.
	Now func() time.Time

	// PrefetchLimit bounds concurrent neighbor fetches.
	PrefetchLimit int
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

type fillResult[V any] struct {
	value   V
	fetched bool
}

// Cache is a read-through cache with lazy TTL expiry and background
// prefetch of neighboring keys. It has no capacity bound.
//
// Concurrent misses for the same key share one fetch, which is not bound to
// any caller's context. A fetch that started before InvalidateAll never
// writes its result back.
type Cache[V any] struct {
	name          string
	fetch         FetchFunc[V]
	ttl           time.Duration
	neighbors     func(string) []string
	clone         func(V) V
	now           func() time.Time
	prefetchLimit int

	mu         sync.RWMutex
	entries    map[string]entry[V]
	generation uint64

	group    singleflight.Group
	prefetch sync.WaitGroup
}

// New creates a cache named name (used in logs and metric labels).
func New[V any](name string, fetch FetchFunc[V], opts Options[V]) *Cache[V] {
	c := &Cache[V]{
		name:          name,
		fetch:         fetch,
		ttl:           opts.TTL,
		neighbors:     opts.Neighbors,
		clone:         opts.Clone,
		now:           opts.Now,
		prefetchLimit: opts.PrefetchLimit,
		entries:       make(map[string]entry[V]),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.clone == nil {
		c.clone = func(v V) V { return v }
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.prefetchLimit <= 0 {
		c.prefetchLimit = DefaultPrefetchLimit
	}
	return c
}

// Name returns the cache name.
func (c *Cache[V]) Name() string {
	return c.name
}

// Get returns the fresh cached value for key, or fetches it. Fetch errors
// are returned unchanged and never cached. A successful fetch schedules a
// background prefetch of the key's neighbors.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	if v, ok := c.lookup(key); ok {
		metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
		return c.clone(v), nil
	}
	metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()

	res, err := c.fill(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}

	if res.fetched {
		c.schedulePrefetch(ctx, key)
	}
	return c.clone(res.value), nil
}

// Peek returns the value for key only if it is fresh. It never fetches.
func (c *Cache[V]) Peek(key string) (V, bool) {
	v, ok := c.lookup(key)
	if !ok {
		return v, false
	}
	return c.clone(v), true
}

// Len returns the number of entries held, fresh or stale.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// InvalidateAll drops every entry. Subsequent Gets miss and refetch.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.generation++
	c.mu.Unlock()

	metrics.CacheEntries.WithLabelValues(c.name).Set(0)
	logging.Debug("Cache", "Invalidated all entries of %s cache", c.name)
}

// Wait blocks until all scheduled prefetches have finished.
func (c *Cache[V]) Wait() {
	c.prefetch.Wait()
}

// lookup returns the stored (uncloned) value if it is fresh.
func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) fill(ctx context.Context, key string) (fillResult[V], error) {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	// The flight outlives any single caller; each caller stops waiting on
	// its own ctx.
	detached := context.WithoutCancel(ctx)
	flightKey := strconv.FormatUint(gen, 10) + "/" + key
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		// Double-check after acquiring the flight, another caller may have filled it.
		if cached, ok := c.lookup(key); ok {
			return fillResult[V]{value: cached}, nil
		}

		start := time.Now()
		fetched, err := c.fetch(detached, key)
		metrics.FetchDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CacheFetchErrors.WithLabelValues(c.name).Inc()
			logging.Debug("Cache", "Fetch for %s/%s failed: %v", c.name, key, err)
			return nil, err
		}

		fetched = c.clone(fetched)
		c.store(key, fetched, gen)
		return fillResult[V]{value: fetched, fetched: true}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fillResult[V]{}, res.Err
		}
		return res.Val.(fillResult[V]), nil
	case <-ctx.Done():
		return fillResult[V]{}, ctx.Err()
	}
}

func (c *Cache[V]) store(key string, v V, gen uint64) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		logging.Debug("Cache", "Dropping %s/%s fetched before invalidation", c.name, key)
		return
	}
	c.entries[key] = entry[V]{value: v, fetchedAt: c.now()}
	n := len(c.entries)
	c.mu.Unlock()

	metrics.CacheEntries.WithLabelValues(c.name).Set(float64(n))
}

// schedulePrefetch fills the neighbors of key in the background. It runs on
// a context detached from the caller's cancellation and its errors are only
// logged. Neighbor fills do not prefetch further.
func (c *Cache[V]) schedulePrefetch(ctx context.Context, key string) {
	if c.neighbors == nil {
		return
	}
	keys := c.neighbors(key)
	if len(keys) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	c.prefetch.Add(1)
	go func() {
		defer c.prefetch.Done()

		var g errgroup.Group
		g.SetLimit(c.prefetchLimit)
		for _, nk := range keys {
			g.Go(func() error {
				if _, ok := c.lookup(nk); ok {
					metrics.CachePrefetches.WithLabelValues(c.name, "skipped").Inc()
					return nil
				}
				if _, err := c.fill(detached, nk); err != nil {
					metrics.CachePrefetches.WithLabelValues(c.name, "error").Inc()
					logging.Warn("Cache", "Prefetch of %s/%s failed: %v", c.name, nk, err)
					return nil
				}
				metrics.CachePrefetches.WithLabelValues(c.name, "success").Inc()
				return nil
			})
		}
		_ = g.Wait()
	}()
}
