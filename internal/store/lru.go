package store

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/iudanet/storysync/internal/models"
)

// docCache is the bounded least-recently-used document cache.
// A non-positive capacity disables caching. Service guards it with its mutex.
type docCache struct {
	lru      *lru.Cache[string, models.Document]
	capacity int
}

func newDocCache(capacity int) *docCache {
	c := &docCache{}
	if capacity <= 0 {
		return c
	}
	// lru.New возвращает ошибку только для неположительного размера
	cache, err := lru.New[string, models.Document](capacity)
	if err != nil {
		return c
	}
	c.lru = cache
	c.capacity = capacity
	return c
}

// Get returns the cached document and marks it most recently used.
func (c *docCache) Get(key string) (models.Document, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

// Peek returns the cached document without touching recency.
func (c *docCache) Peek(key string) (models.Document, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Peek(key)
}

// Put inserts or replaces key. Reports whether an entry was evicted.
func (c *docCache) Put(key string, doc models.Document) bool {
	if c.lru == nil {
		return false
	}
	return c.lru.Add(key, doc)
}

// Remove drops key from the cache.
func (c *docCache) Remove(key string) bool {
	if c.lru == nil {
		return false
	}
	return c.lru.Remove(key)
}

func (c *docCache) Clear() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

func (c *docCache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Keys returns cached keys, most recently used first.
func (c *docCache) Keys() []string {
	if c.lru == nil {
		return []string{}
	}
	keys := c.lru.Keys()
	// golang-lru отдает ключи от старых к новым
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return keys
}
