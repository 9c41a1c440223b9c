package cache

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
	"sync"
)

var Logger = logger.GetLogger(common.LoggerCache)

// ErrNotInitialized is returned by Resolve before Init was called
var ErrNotInitialized = errors.New("vst: collection cache has no database access")

// --------------------------------------------------------------------------
// Collection Types
// --------------------------------------------------------------------------

// CollectionType is the entity type of a collection. The numeric values are
// the ones reported by the server.
type CollectionType int

const (
	CollectionUnknown  CollectionType = 0
	CollectionDocument CollectionType = 2
	CollectionEdge     CollectionType = 3
)

// String returns the string representation of a CollectionType
func (t CollectionType) String() string {
	switch t {
	case CollectionDocument:
		return "document"
	case CollectionEdge:
		return "edge"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// --------------------------------------------------------------------------
// Database Access
// --------------------------------------------------------------------------

// DBAccess queries collection metadata from the server. Implementations must
// not depend on the CollectionCache they are injected into.
type DBAccess interface {
	// CollectionType returns the type of a collection or a
	// common.CollectionNotFoundError if the server does not know it
	CollectionType(ctx context.Context, name string) (CollectionType, error)
}

// DBAccessFunc adapts a function to the DBAccess interface
type DBAccessFunc func(ctx context.Context, name string) (CollectionType, error)

func (f DBAccessFunc) CollectionType(ctx context.Context, name string) (CollectionType, error) {
	return f(ctx, name)
}

// --------------------------------------------------------------------------
// Collection Cache
// --------------------------------------------------------------------------

// CollectionCache maps collection names to their type. It is filled lazily
// through a DBAccess that is injected after construction:
//
//	collections := cache.NewCollectionCache()
//	main := client.NewExecutor("main", pool, s)
//	collections.Init(metadataAccess) // metadataAccess uses its own pool
//
// Concurrent misses for the same name share a single query. Unknown
// collections are never cached.
type CollectionCache struct {
	entries *xsync.MapOf[string, CollectionType]
	group   singleflight.Group

	accessMu sync.RWMutex
	access   DBAccess
}

// NewCollectionCache creates an empty cache without database access
func NewCollectionCache() *CollectionCache {
	return &CollectionCache{
		entries: xsync.NewMapOf[string, CollectionType](),
	}
}

// Init injects the database access used to resolve misses. It may be called
// again to replace the access.
func (c *CollectionCache) Init(access DBAccess) {
	c.accessMu.Lock()
	defer c.accessMu.Unlock()
	c.access = access
}

// Resolve returns the type of a collection, querying the server on a miss.
// Cancelling ctx stops the wait but not a shared query in flight.
func (c *CollectionCache) Resolve(ctx context.Context, name string) (CollectionType, error) {
	if t, ok := c.entries.Load(name); ok {
		return t, nil
	}

	c.accessMu.RLock()
	access := c.access
	c.accessMu.RUnlock()
	if access == nil {
		return CollectionUnknown, ErrNotInitialized
	}

	// The query outlives a cancelled caller, other waiters may still need it
	queryCtx := context.WithoutCancel(ctx)
	resultCh := c.group.DoChan(name, func() (interface{}, error) {
		if t, ok := c.entries.Load(name); ok {
			return t, nil
		}

		Logger.Debugf("Resolving type of collection %q", name)
		t, err := access.CollectionType(queryCtx, name)
		if err != nil {
			return CollectionUnknown, err
		}
		c.entries.Store(name, t)
		return t, nil
	})

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return CollectionUnknown, res.Err
		}
		return res.Val.(CollectionType), nil
	case <-ctx.Done():
		return CollectionUnknown, ctx.Err()
	}
}

// Refresh drops the cached entry of a collection and resolves it again
func (c *CollectionCache) Refresh(ctx context.Context, name string) (CollectionType, error) {
	c.entries.Delete(name)
	c.group.Forget(name)
	return c.Resolve(ctx, name)
}

// Lookup returns a cached entry without querying the server
func (c *CollectionCache) Lookup(name string) (CollectionType, bool) {
	return c.entries.Load(name)
}

// Remove drops the cached entry of a collection
func (c *CollectionCache) Remove(name string) {
	c.entries.Delete(name)
}

// Clear drops all cached entries
func (c *CollectionCache) Clear() {
	c.entries.Clear()
}

// Len returns the number of cached collections
func (c *CollectionCache) Len() int {
	return c.entries.Size()
}
