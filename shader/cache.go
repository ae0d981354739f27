package shader

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// DefaultCheckCacheSize is the number of sources whose Check outcome is
// remembered.
const DefaultCheckCacheSize = 64

func fnv64(src string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(src)) // fnv.Write never returns an error
	return h.Sum64()
}

type checkEntry struct {
	key uint64
	src string
	err error
}

// checkCache is an LRU of Check outcomes. Programs rebuilt for a new target
// format, or reloaded with unchanged source, skip the naga pass. Entries are
// found by hash and confirmed against the stored source.
type checkCache struct {
	mu       sync.Mutex
	capacity int
	hash     func(string) uint64
	entries  map[uint64]*list.Element
	lru      *list.List

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newCheckCache(capacity int) *checkCache {
	if capacity <= 0 {
		capacity = DefaultCheckCacheSize
	}
	return &checkCache{
		capacity: capacity,
		hash:     fnv64,
		entries:  make(map[uint64]*list.Element),
		lru:      list.New(),
	}
}

func (c *checkCache) check(src string) error {
	key := c.hash(src)
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		if e := el.Value.(*checkEntry); e.src == src {
			c.lru.MoveToFront(el)
			c.mu.Unlock()
			c.hits.Add(1)
			return e.err
		}
	}
	c.mu.Unlock()
	c.misses.Add(1)

	err := Check(src)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		// Same source stored concurrently, or a colliding one to replace.
		c.lru.Remove(el)
		delete(c.entries, key)
	}
	for c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*checkEntry).key)
	}
	c.entries[key] = c.lru.PushFront(&checkEntry{key: key, src: src, err: err})
	return err
}

func (c *checkCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

var checked = newCheckCache(DefaultCheckCacheSize)

// CheckCached is Check with the outcome remembered per source.
func CheckCached(wgsl string) error {
	return checked.check(wgsl)
}

// CheckCacheStats returns the hit and miss counts of CheckCached.
func CheckCacheStats() (hits, misses uint64) {
	return checked.hits.Load(), checked.misses.Load()
}
