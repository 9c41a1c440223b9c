package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/arangovst/lib/cache"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"net/url"
	"strconv"
)

// --------------------------------------------------------------------------
// Result Types
// --------------------------------------------------------------------------

// VersionInfo is the reply of GET /_api/version
type VersionInfo struct {
	Server  string `json:"server"`
	Version string `json:"version"`
	License string `json:"license"`
}

// CollectionInfo is the reply of GET /_api/collection/{name}
type CollectionInfo struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Type     cache.CollectionType `json:"type"`
	Status   int                  `json:"status"`
	IsSystem bool                 `json:"isSystem"`
}

// DocumentMeta holds the system attributes returned by document operations
type DocumentMeta struct {
	ID     string `json:"_id"`
	Key    string `json:"_key"`
	Rev    string `json:"_rev"`
	OldRev string `json:"_oldRev,omitempty"`
}

// Handle returns the document handle of the meta data
func (m DocumentMeta) Handle() (cache.DocumentHandle, error) {
	return cache.ParseHandle(m.ID)
}

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

// GetVersion returns the server version
func (c *Client) GetVersion(ctx context.Context) *Future[VersionInfo] {
	req := common.NewRequest(c.config.Database, common.MethodGet, "/_api/version")
	return Execute(ctx, c.executor, req, DecodeBody[VersionInfo](c.serializer))
}

// --------------------------------------------------------------------------
// Collections
// --------------------------------------------------------------------------

// CollectionInfo returns the metadata of a collection. It always queries the server.
func (c *Client) CollectionInfo(ctx context.Context, name string) *Future[CollectionInfo] {
	req := common.NewRequest(c.config.Database, common.MethodGet, collectionPath(name))
	return Execute(ctx, c.executor, req, DecodeBody[CollectionInfo](c.serializer))
}

// CollectionType resolves the type of a collection through the collection cache
func (c *Client) CollectionType(ctx context.Context, name string) *Future[cache.CollectionType] {
	return Go(ctx, func(ctx context.Context) (cache.CollectionType, error) {
		return c.collections.Resolve(ctx, name)
	})
}

// CreateCollection creates a document or edge collection
func (c *Client) CreateCollection(ctx context.Context, name string, colType cache.CollectionType) *Future[CollectionInfo] {
	body, err := c.serializer.Marshal(map[string]interface{}{"name": name, "type": int(colType)})
	if err != nil {
		return Completed(CollectionInfo{}, fmt.Errorf("failed to encode collection: %w", err))
	}
	req := common.NewRequest(c.config.Database, common.MethodPost, "/_api/collection").WithBody(body)

	// A collection of the same name may have been dropped, forget its type
	c.collections.Remove(name)
	return Execute(ctx, c.executor, req, DecodeBody[CollectionInfo](c.serializer))
}

// DropCollection drops a collection and its cached type
func (c *Client) DropCollection(ctx context.Context, name string) *Future[struct{}] {
	req := common.NewRequest(c.config.Database, common.MethodDelete, collectionPath(name))
	return Then(Execute(ctx, c.executor, req, Discard), func(v struct{}) (struct{}, error) {
		c.collections.Remove(name)
		return v, nil
	})
}

// --------------------------------------------------------------------------
// Documents
// --------------------------------------------------------------------------

// GetDocument reads a document. The body is decoded into result if it is not nil.
func (c *Client) GetDocument(ctx context.Context, h cache.DocumentHandle, result interface{}) *Future[DocumentMeta] {
	req := common.NewRequest(c.config.Database, common.MethodGet, documentPath(h))
	f := Execute(ctx, c.executor, req, func(resp common.Response) (DocumentMeta, error) {
		meta, err := c.decodeMeta(resp)
		if err != nil {
			return meta, err
		}
		if result != nil {
			if err := c.serializer.Unmarshal(resp.Body, result); err != nil {
				return meta, err
			}
		}
		return meta, nil
	})
	return c.trackRevision(h, f, false)
}

// InsertDocument stores a new document, the server assigns a key if doc has none
func (c *Client) InsertDocument(ctx context.Context, collection string, doc interface{}) *Future[DocumentMeta] {
	body, err := c.serializer.Marshal(doc)
	if err != nil {
		return Completed(DocumentMeta{}, fmt.Errorf("failed to encode document: %w", err))
	}
	req := common.NewRequest(c.config.Database, common.MethodPost, "/_api/document/"+url.PathEscape(collection)).WithBody(body)

	f := Execute(ctx, c.executor, req, c.decodeMeta)
	return Then(f, func(meta DocumentMeta) (DocumentMeta, error) {
		if meta.Key != "" {
			c.documents.Put(cache.NewHandle(collection, meta.Key), meta.Rev)
		}
		return meta, nil
	})
}

// InsertEdge stores a new edge from one document to another. The collection
// must be an edge collection, its type is resolved through the collection cache.
func (c *Client) InsertEdge(ctx context.Context, collection string, from, to cache.DocumentHandle, doc map[string]interface{}) *Future[DocumentMeta] {
	return ThenAsync(c.CollectionType(ctx, collection), func(colType cache.CollectionType) *Future[DocumentMeta] {
		if colType != cache.CollectionEdge {
			return Completed(DocumentMeta{}, fmt.Errorf("collection %q is a %s collection, expected edge", collection, colType))
		}
		edge := make(map[string]interface{}, len(doc)+2)
		for k, v := range doc {
			edge[k] = v
		}
		edge["_from"] = from.String()
		edge["_to"] = to.String()
		return c.InsertDocument(ctx, collection, edge)
	})
}

// ReplaceDocument replaces a document. If a revision of the document is
// cached the replace is conditional on it.
func (c *Client) ReplaceDocument(ctx context.Context, h cache.DocumentHandle, doc interface{}) *Future[DocumentMeta] {
	body, err := c.serializer.Marshal(doc)
	if err != nil {
		return Completed(DocumentMeta{}, fmt.Errorf("failed to encode document: %w", err))
	}
	req := c.withPrecondition(h, common.NewRequest(c.config.Database, common.MethodPut, documentPath(h)).WithBody(body))
	return c.trackRevision(h, Execute(ctx, c.executor, req, c.decodeMeta), false)
}

// DeleteDocument removes a document. If a revision of the document is
// cached the delete is conditional on it.
func (c *Client) DeleteDocument(ctx context.Context, h cache.DocumentHandle) *Future[DocumentMeta] {
	req := c.withPrecondition(h, common.NewRequest(c.config.Database, common.MethodDelete, documentPath(h)))
	return c.trackRevision(h, Execute(ctx, c.executor, req, c.decodeMeta), true)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// trackRevision keeps the document cache in sync with the outcome of f.
// A rejected precondition or a missing document evicts the cached revision.
func (c *Client) trackRevision(h cache.DocumentHandle, f *Future[DocumentMeta], deleted bool) *Future[DocumentMeta] {
	return Handle(f, func(meta DocumentMeta, err error) (DocumentMeta, error) {
		switch {
		case err == nil && deleted:
			c.documents.Remove(h)
		case err == nil:
			c.documents.Put(h, meta.Rev)
		case common.IsStatus(err, 412), common.IsStatus(err, 404):
			c.documents.Remove(h)
		}
		return meta, err
	})
}

// withPrecondition adds an if-match header with the cached revision
func (c *Client) withPrecondition(h cache.DocumentHandle, req common.Request) common.Request {
	if rev, ok := c.documents.Get(h); ok {
		return req.WithHeader("if-match", strconv.Quote(rev))
	}
	return req
}

// decodeMeta decodes the system attributes, the etag header is used if the
// body carries no revision
func (c *Client) decodeMeta(resp common.Response) (DocumentMeta, error) {
	var meta DocumentMeta
	if err := c.serializer.Unmarshal(resp.Body, &meta); err != nil {
		return meta, err
	}
	if meta.Rev == "" {
		if etag := resp.Header("etag"); etag != "" {
			if rev, err := strconv.Unquote(etag); err == nil {
				meta.Rev = rev
			} else {
				meta.Rev = etag
			}
		}
	}
	return meta, nil
}

// Go runs fn in a goroutine and returns its result as a future. Cancelling
// the future cancels the context passed to fn.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(ctx)
	f := newFuture[T](cancel)
	go func() {
		defer cancel()
		value, err := safeApply(func() (T, error) { return fn(ctx) })
		f.complete(value, err)
	}()
	return f
}

func collectionPath(name string) string {
	return "/_api/collection/" + url.PathEscape(name)
}

func documentPath(h cache.DocumentHandle) string {
	return "/_api/document/" + url.PathEscape(h.Collection) + "/" + url.PathEscape(h.Key)
}
