package cache

import (
	"container/list"
	"sync"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
)

type lruEntry struct {
	key   string
	value []domain.Description
}

// LRU is a bounded in-process result store. Entries are write-once.
type LRU struct {
	size int

	mu    sync.Mutex
	order *list.List
	items map[string]*list.Element
}

// NewLRU creates an LRU holding at most size results.
func NewLRU(size int) *LRU {
	if size <= 0 {
		size = defaultSize
	}
	return &LRU{
		size:  size,
		order: list.New(),
		items: make(map[string]*list.Element, size),
	}
}

// Get returns a copy of the stored result and marks it recently used.
func (c *LRU) Get(key string) ([]domain.Description, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return domain.CloneDescriptions(el.Value.(*lruEntry).value), true
}

// Add stores a copy of value unless key is already present, evicting the
// least recently used entry when full. It reports whether value was stored.
func (c *LRU) Add(key string, value []domain.Description) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return false
	}

	el := c.order.PushFront(&lruEntry{key: key, value: domain.CloneDescriptions(value)})
	c.items[key] = el

	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruEntry).key)
	}
	return true
}

// Len returns the number of stored results.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
