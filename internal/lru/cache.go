package lru

import (
	"container/list"
	"sync"
)

type CacheIdentifier interface {
	Identifier() string
}

type listEntry[T CacheIdentifier] struct {
	id    string
	entry T
}

// Cache is a thread-safe LRU cache of generic entries.
// Adding an entry with a known identifier replaces the old one.
type Cache[T CacheIdentifier] struct {
	capacity int
	mu       sync.Mutex
	order    *list.List
	index    map[string]*list.Element
}

func NewCache[T CacheIdentifier](capacity int) *Cache[T] {
	return &Cache[T]{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (c *Cache[T]) addEntryUnsafe(id string, entry T) {
	if element, ok := c.index[id]; ok {
		element.Value.(*listEntry[T]).entry = entry
		c.order.MoveToFront(element)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictUnsafe()
	}

	c.index[id] = c.order.PushFront(&listEntry[T]{
		id:    id,
		entry: entry,
	})
}

func (c *Cache[T]) evictUnsafe() {
	element := c.order.Back()
	if element != nil {
		c.order.Remove(element)
		delete(c.index, element.Value.(*listEntry[T]).id)
	}
}

func (c *Cache[T]) Add(entry T) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.addEntryUnsafe(entry.Identifier(), entry)
}

func (c *Cache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

func (c *Cache[T]) GetByID(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	c.order.MoveToFront(element)
	return element.Value.(*listEntry[T]).entry, true
}

func (c *Cache[T]) DeleteByID(id string) (present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.index[id]
	if !ok {
		return false
	}
	c.order.Remove(element)
	delete(c.index, id)
	return true
}

// Purge drops all entries.
func (c *Cache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.index = make(map[string]*list.Element)
}
