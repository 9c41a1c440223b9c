package cache

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeAccess answers metadata queries from a fixed map and counts them
type fakeAccess struct {
	types   map[string]CollectionType
	delay   time.Duration
	queries sync.Map // name -> *atomic.Int64
	total   atomic.Int64
}

func (f *fakeAccess) CollectionType(_ context.Context, name string) (CollectionType, error) {
	counter, _ := f.queries.LoadOrStore(name, &atomic.Int64{})
	counter.(*atomic.Int64).Add(1)
	f.total.Add(1)

	time.Sleep(f.delay)
	if t, ok := f.types[name]; ok {
		return t, nil
	}
	return CollectionUnknown, &common.CollectionNotFoundError{Name: name}
}

func (f *fakeAccess) count(name string) int64 {
	if counter, ok := f.queries.Load(name); ok {
		return counter.(*atomic.Int64).Load()
	}
	return 0
}

func TestCollectionCache_Resolve(t *testing.T) {
	t.Run("caches an edge collection", func(t *testing.T) {
		// Arrange
		access := &fakeAccess{types: map[string]CollectionType{"edges": CollectionEdge}}
		c := NewCollectionCache()
		c.Init(access)

		// Act
		first, err := c.Resolve(context.Background(), "edges")
		require.NoError(t, err)
		second, err := c.Resolve(context.Background(), "edges")
		require.NoError(t, err)

		// Assert
		assert.Equal(t, CollectionEdge, first)
		assert.Equal(t, CollectionEdge, second)
		assert.Equal(t, int64(1), access.count("edges"))
		cached, ok := c.Lookup("edges")
		assert.True(t, ok)
		assert.Equal(t, CollectionEdge, cached)
	})

	t.Run("unknown collection is not cached", func(t *testing.T) {
		access := &fakeAccess{types: map[string]CollectionType{}}
		c := NewCollectionCache()
		c.Init(access)

		_, err := c.Resolve(context.Background(), "missing")
		var notFound *common.CollectionNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "missing", notFound.Name)

		_, err = c.Resolve(context.Background(), "missing")
		require.Error(t, err)
		assert.Equal(t, int64(2), access.count("missing"), "a failed resolve must re-check the server")
		assert.Equal(t, 0, c.Len())
	})

	t.Run("fails without database access", func(t *testing.T) {
		c := NewCollectionCache()

		_, err := c.Resolve(context.Background(), "col")

		assert.True(t, errors.Is(err, ErrNotInitialized))
	})
}

func TestCollectionCache_SingleFlight(t *testing.T) {
	const n = 50

	access := &fakeAccess{
		types: map[string]CollectionType{"col": CollectionDocument},
		delay: 50 * time.Millisecond,
	}
	c := NewCollectionCache()
	c.Init(access)

	var wg sync.WaitGroup
	results := make([]CollectionType, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Resolve(context.Background(), "col")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, CollectionDocument, results[i])
	}
	assert.Equal(t, int64(1), access.count("col"))
}

func TestCollectionCache_DistinctNames(t *testing.T) {
	const m = 10

	types := map[string]CollectionType{}
	for i := 0; i < m; i++ {
		types[fmt.Sprintf("col%d", i)] = CollectionDocument
	}
	access := &fakeAccess{types: types, delay: 100 * time.Millisecond}
	c := NewCollectionCache()
	c.Init(access)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				_, err := c.Resolve(context.Background(), name)
				assert.NoError(t, err)
			}(fmt.Sprintf("col%d", i))
		}
	}
	wg.Wait()

	assert.Equal(t, int64(m), access.total.Load())
	// The queries run concurrently, sequential execution would take m * delay
	assert.Less(t, time.Since(start), time.Duration(m/2)*access.delay)
}

func TestCollectionCache_CancelledWaiter(t *testing.T) {
	access := &fakeAccess{
		types: map[string]CollectionType{"col": CollectionDocument},
		delay: 200 * time.Millisecond,
	}
	c := NewCollectionCache()
	c.Init(access)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Resolve(ctx, "col")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The shared query still completes and fills the cache
	got, err := c.Resolve(context.Background(), "col")
	require.NoError(t, err)
	assert.Equal(t, CollectionDocument, got)
	assert.Equal(t, int64(1), access.count("col"))
}

func TestCollectionCache_RefreshAndClear(t *testing.T) {
	access := &fakeAccess{types: map[string]CollectionType{"col": CollectionDocument}}
	c := NewCollectionCache()
	c.Init(access)

	_, err := c.Resolve(context.Background(), "col")
	require.NoError(t, err)

	// The collection was recreated as an edge collection
	access.types = map[string]CollectionType{"col": CollectionEdge}
	got, err := c.Refresh(context.Background(), "col")
	require.NoError(t, err)
	assert.Equal(t, CollectionEdge, got)
	assert.Equal(t, int64(2), access.count("col"))

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, err = c.Resolve(context.Background(), "col")
	require.NoError(t, err)
	assert.Equal(t, int64(3), access.count("col"))
}

func TestDocumentCache(t *testing.T) {
	t.Run("returns the last written revision", func(t *testing.T) {
		c := NewDocumentCache()
		h := NewHandle("mycol", "key1")

		_, ok := c.Get(h)
		assert.False(t, ok)

		c.Put(h, "_rev122")
		c.Put(h, "_rev123")
		rev, ok := c.Get(h)

		assert.True(t, ok)
		assert.Equal(t, "_rev123", rev)
	})

	t.Run("ignores empty revisions", func(t *testing.T) {
		c := NewDocumentCache()
		c.Put(NewHandle("mycol", "key1"), "")
		assert.Equal(t, 0, c.Len())
	})

	t.Run("remove and clear", func(t *testing.T) {
		c := NewDocumentCache()
		c.Put(NewHandle("mycol", "key1"), "_a")
		c.Put(NewHandle("mycol", "key2"), "_b")

		c.Remove(NewHandle("mycol", "key1"))
		_, ok := c.Get(NewHandle("mycol", "key1"))
		assert.False(t, ok)
		assert.Equal(t, 1, c.Len())

		c.Clear()
		assert.Equal(t, 0, c.Len())
	})
}

func TestBoundedDocumentCache(t *testing.T) {
	c := NewBoundedDocumentCache(2)
	a, b, d := NewHandle("col", "a"), NewHandle("col", "b"), NewHandle("col", "d")

	c.Put(a, "_1")
	c.Put(b, "_2")
	// Observing a again makes b the oldest entry
	c.Put(a, "_3")
	c.Put(d, "_4")

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(b)
	assert.False(t, ok, "the oldest entry should be evicted")
	rev, ok := c.Get(a)
	assert.True(t, ok)
	assert.Equal(t, "_3", rev)

	c.Remove(a)
	c.Put(b, "_5")
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get(d)
	assert.True(t, ok, "removing an entry frees its slot")
}

func TestDocumentCache_Concurrent(t *testing.T) {
	c := NewBoundedDocumentCache(100)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				h := NewHandle("col", fmt.Sprintf("%d-%d", w, i))
				c.Put(h, "_rev")
				if i%3 == 0 {
					c.Remove(h)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 100)
}

func TestParseHandle(t *testing.T) {
	testCases := []struct {
		id      string
		want    DocumentHandle
		wantErr bool
	}{
		{id: "mycol/key1", want: NewHandle("mycol", "key1")},
		{id: "mycol", wantErr: true},
		{id: "/key1", wantErr: true},
		{id: "mycol/", wantErr: true},
		{id: "a/b/c", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.id, func(t *testing.T) {
			got, err := ParseHandle(tc.id)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.id, got.String())
		})
	}
}
