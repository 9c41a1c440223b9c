package cache

import (
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
)

// DocumentCache maps document handles to the most recently observed revision.
// It never talks to the server. A stale revision is harmless: the server
// rejects the precondition built from it.
type DocumentCache struct {
	entries *xsync.MapOf[DocumentHandle, string]

	// eviction, only used if capacity > 0
	capacity int
	evictMu  sync.Mutex
	order    *MapHeap[DocumentHandle]
	seq      uint64
}

// NewDocumentCache creates an unbounded cache
func NewDocumentCache() *DocumentCache {
	return NewBoundedDocumentCache(0)
}

// NewBoundedDocumentCache creates a cache holding at most capacity entries.
// If full, the entry observed longest ago is evicted. capacity <= 0 means unbounded.
func NewBoundedDocumentCache(capacity int) *DocumentCache {
	c := &DocumentCache{
		entries:  xsync.NewMapOf[DocumentHandle, string](),
		capacity: max(capacity, 0),
	}
	if c.capacity > 0 {
		c.order = NewMapHeap[DocumentHandle]()
	}
	return c
}

// Get returns the last seen revision of a document
func (c *DocumentCache) Get(h DocumentHandle) (string, bool) {
	return c.entries.Load(h)
}

// Put records rev as the last seen revision of a document. Empty revisions are ignored.
func (c *DocumentCache) Put(h DocumentHandle, rev string) {
	if rev == "" {
		return
	}
	if c.capacity == 0 {
		c.entries.Store(h, rev)
		return
	}

	c.evictMu.Lock()
	defer c.evictMu.Unlock()
	c.entries.Store(h, rev)
	c.seq++
	c.order.AddItem(h, c.seq)
	for c.order.Len() > c.capacity {
		oldest, _ := c.order.PopMin()
		c.entries.Delete(oldest)
	}
}

// Remove drops the entry of a document
func (c *DocumentCache) Remove(h DocumentHandle) {
	if c.capacity == 0 {
		c.entries.Delete(h)
		return
	}

	c.evictMu.Lock()
	defer c.evictMu.Unlock()
	c.entries.Delete(h)
	c.order.RemoveByKey(h)
}

// Clear drops all entries
func (c *DocumentCache) Clear() {
	if c.capacity == 0 {
		c.entries.Clear()
		return
	}

	c.evictMu.Lock()
	defer c.evictMu.Unlock()
	c.entries.Clear()
	c.order.Reset()
}

// Len returns the number of cached revisions
func (c *DocumentCache) Len() int {
	return c.entries.Size()
}
