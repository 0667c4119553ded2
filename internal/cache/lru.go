package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a bounded TTL cache. It backs the per-user budget status
// views: entries are few, reads dominate, and a short TTL keeps a
// dashboard poll from recomputing the view against the ledger each time.
type LRUCache[T any] struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	byKey map[string]*list.Element
	order *list.List // front is most recently used
}

type entry[T any] struct {
	key     string
	value   T
	staleAt time.Time
}

func (e *entry[T]) stale(now time.Time) bool {
	return now.After(e.staleAt)
}

// NewLRUCache returns a cache holding at most maxSize entries, each
// valid for ttl after its last Set.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		cap:   maxSize,
		ttl:   ttl,
		byKey: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Get returns the cached value and refreshes its recency. A stale
// entry is dropped on the spot and reported as a miss.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.byKey[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[T])
	if e.stale(time.Now()) {
		c.drop(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key, restarting its TTL. The least recently
// used entry is evicted when the cache is full.
func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, staleAt: time.Now().Add(c.ttl)}

	if el, ok := c.byKey[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}

	c.byKey[key] = c.order.PushFront(e)
	if c.order.Len() > c.cap {
		if oldest := c.order.Back(); oldest != nil {
			c.drop(oldest)
		}
	}
}

// Delete removes key. Missing keys are a no-op.
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[key]; ok {
		c.drop(el)
	}
}

// CleanExpired drops every stale entry and reports how many went.
// The Manager calls this on its sweep interval.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	dropped := 0
	var next *list.Element
	for el := c.order.Front(); el != nil; el = next {
		next = el.Next()
		if el.Value.(*entry[T]).stale(now) {
			c.drop(el)
			dropped++
		}
	}
	return dropped
}

// Size reports the number of entries currently held, stale or not.
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byKey)
}

func (c *LRUCache[T]) drop(el *list.Element) {
	delete(c.byKey, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}
