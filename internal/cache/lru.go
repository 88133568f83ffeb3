package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache evicts by size and TTL. A zero TTL never expires. A sliding
// cache pushes the deadline forward on every hit.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	sliding bool
	items   map[string]*list.Element
	lru     *list.List
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// NewSlidingLRUCache creates a cache whose entries expire ttl after their last use.
func NewSlidingLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	c := NewLRUCache[T](maxSize, ttl)
	c.sliding = true
	return c
}

func (c *LRUCache[T]) expiry(now time.Time) time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(c.ttl)
}

func expired[T any](item *cacheItem[T], now time.Time) bool {
	return !item.expiresAt.IsZero() && now.After(item.expiresAt)
}

// Get retrieves a value from the cache
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	now := time.Now()
	if expired(item, now) {
		c.removeElement(elem)
		return zero, false
	}
	if c.sliding {
		item.expiresAt = c.expiry(now)
	}

	c.lru.MoveToFront(elem)
	return item.data, true
}

// GetOrCreate returns the live value under key, storing create() first when
// there is none. The check and the store happen under one lock.
func (c *LRUCache[T]) GetOrCreate(key string, create func() T) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*cacheItem[T])
		if !expired(item, now) {
			if c.sliding {
				item.expiresAt = c.expiry(now)
			}
			c.lru.MoveToFront(elem)
			return item.data, true
		}
		c.removeElement(elem)
	}
	data := create()
	c.insertLocked(key, data, now)
	return data, false
}

// Set stores a value in the cache
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.insertLocked(key, data, time.Now())
}

func (c *LRUCache[T]) insertLocked(key string, data T, now time.Time) {
	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: c.expiry(now),
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.maxSize > 0 && c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Delete removes a key from the cache
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if expired(elem.Value.(*cacheItem[T]), now) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		c.removeElement(elem)
	}

	return len(toRemove)
}

// Clear drops every entry.
func (c *LRUCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}