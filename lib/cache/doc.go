/*
Package cache holds the two client side caches of a VST client.

CollectionCache maps collection names to their type (document or edge). Misses
are resolved through a DBAccess capability that is injected after the cache was
created. This breaks the cycle between the cache and the executor: the executor
holds the cache, the DBAccess uses a separate metadata executor that never
consults the cache.

	collections := cache.NewCollectionCache()
	collections.Init(cache.DBAccessFunc(func(ctx context.Context, name string) (cache.CollectionType, error) {
		return queryServer(ctx, name)
	}))
	t, err := collections.Resolve(ctx, "edges")

Concurrent misses for one name are collapsed into a single query. Names the
server does not know yield a common.CollectionNotFoundError and are not cached.

DocumentCache maps a DocumentHandle (collection and key) to the last revision
that was observed for it. It is used to attach if-match preconditions. The
cache can be bounded, in which case the entry observed longest ago is evicted.
The eviction order is kept in a MapHeap, a binary min-heap with O(1) access by key.

Both caches are owned by one client instance. There is no process wide state.
*/
package cache
