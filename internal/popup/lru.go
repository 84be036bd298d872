package popup

import "container/list"

const defaultCacheCapacity = 32

// lru is a fixed-capacity least-recently-used map. Not safe for concurrent use.
type lru[K comparable, V any] struct {
	capacity int
	order    *list.List
	entries  map[K]*list.Element
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

func newLRU[K comparable, V any](capacity int) *lru[K, V] {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &lru[K, V]{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[K]*list.Element, capacity),
	}
}

// get returns the value for key and marks it most recently used.
func (c *lru[K, V]) get(key K) (V, bool) {
	elem, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry[K, V]).value, true
}

// peek returns the value for key without touching recency.
func (c *lru[K, V]) peek(key K) (V, bool) {
	elem, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(*lruEntry[K, V]).value, true
}

// put stores value and evicts the least recently used entries beyond
// capacity. It returns the evicted keys.
func (c *lru[K, V]) put(key K, value V) []K {
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*lruEntry[K, V]).value = value
		c.order.MoveToFront(elem)
		return nil
	}

	c.entries[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})

	var evicted []K
	for c.order.Len() > c.capacity {
		last := c.order.Back()
		if last == nil {
			break
		}
		c.order.Remove(last)
		entry := last.Value.(*lruEntry[K, V])
		delete(c.entries, entry.key)
		evicted = append(evicted, entry.key)
	}
	return evicted
}

func (c *lru[K, V]) len() int { return c.order.Len() }

func (c *lru[K, V]) clear() {
	c.order.Init()
	clear(c.entries)
}

// keys returns keys from most to least recently used.
func (c *lru[K, V]) keys() []K {
	out := make([]K, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*lruEntry[K, V]).key)
	}
	return out
}
