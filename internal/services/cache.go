package services

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"sales-dashboard/internal/models"
)

type cacheEntry struct {
	dataset *models.Dataset
	expires time.Time
}

// DatasetCache keeps prepared datasets keyed by dataset ID. Concurrent loads
// of the same key share one call. A load that straddles a Purge is returned
// to its callers but not stored.
type DatasetCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	gen     uint64
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

func NewDatasetCache(ttl time.Duration) *DatasetCache {
	return &DatasetCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *DatasetCache) Get(key string) (*models.Dataset, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.expired(e) {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.dataset, true
}

func (c *DatasetCache) Put(key string, ds *models.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{dataset: ds, expires: c.now().Add(c.ttl)}
}

// GetOrLoad returns the cached dataset for key, calling load at most once
// across concurrent callers when it is missing. cached reports whether the
// value was already present.
func (c *DatasetCache) GetOrLoad(key string, load func() (*models.Dataset, error)) (*models.Dataset, bool, error) {
	if ds, ok := c.Get(key); ok {
		return ds, true, nil
	}

	gen := c.generation()
	v, err, _ := c.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		if ds, ok := c.peek(key); ok {
			return ds, nil
		}
		ds, err := load()
		if err != nil {
			return nil, err
		}
		c.putIfCurrent(key, ds, gen)
		return ds, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*models.Dataset), false, nil
}

func (c *DatasetCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every entry and returns how many were removed.
func (c *DatasetCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]cacheEntry)
	c.gen++
	c.evictions.Add(int64(n))
	return n
}

// Sweep removes expired entries.
func (c *DatasetCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			removed++
		}
	}
	c.evictions.Add(int64(removed))
	return removed
}

func (c *DatasetCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *DatasetCache) Stats() CacheStats {
	return CacheStats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (c *DatasetCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// putIfCurrent stores ds only when no Purge ran since gen was read.
func (c *DatasetCache) putIfCurrent(key string, ds *models.Dataset, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.entries[key] = cacheEntry{dataset: ds, expires: c.now().Add(c.ttl)}
	}
}

func (c *DatasetCache) peek(key string) (*models.Dataset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return nil, false
	}
	return e.dataset, true
}

func (c *DatasetCache) expired(e cacheEntry) bool {
	return c.ttl > 0 && !c.now().Before(e.expires)
}
