package server

import (
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/segmentio/ksuid"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Server error numbers returned by the mock database
const (
	ErrNumPreconditionFailed       = 1200
	ErrNumDocumentNotFound         = 1202
	ErrNumCollectionNotFound       = 1203
	ErrNumDuplicateName            = 1207
	ErrNumUniqueConstraintViolated = 1210
	ErrNumHTTPNotFound             = 404
	ErrNumHTTPMethodNotAllowed     = 405
	ErrNumBadParameter             = 10
)

// Collection types as reported by the server
const (
	CollectionTypeDocument = 2
	CollectionTypeEdge     = 3
)

// MockVersion is the version reported by GET /_api/version
const MockVersion = "3.11.0-mock"

// mockDocument is a stored document with its current revision
type mockDocument struct {
	rev  string
	body map[string]interface{}
}

// mockCollection is a named set of documents
type mockCollection struct {
	id        string
	name      string
	colType   int
	documents *xsync.MapOf[string, mockDocument]
}

// MockDatabase is an in-memory implementation of the collection and document
// endpoints. It is used by tests and by `avst serve`.
type MockDatabase struct {
	serializer  serializer.IValueSerializer
	collections *xsync.MapOf[string, *mockCollection]
	queries     *xsync.MapOf[string, *atomic.Int64]
	nextID      atomic.Uint64
	nextRev     atomic.Uint64
	latency     atomic.Int64
}

// NewMockDatabase creates an empty database. Bodies are encoded with s.
func NewMockDatabase(s serializer.IValueSerializer) *MockDatabase {
	return &MockDatabase{
		serializer:  s,
		collections: xsync.NewMapOf[string, *mockCollection](),
		queries:     xsync.NewMapOf[string, *atomic.Int64](),
	}
}

// --------------------------------------------------------------------------
// Test Helpers
// --------------------------------------------------------------------------

// CreateCollection adds a collection, it returns false if the name is taken
func (m *MockDatabase) CreateCollection(name string, colType int) bool {
	_, loaded := m.collections.LoadOrCompute(name, func() *mockCollection {
		return &mockCollection{
			id:        strconv.FormatUint(m.nextID.Add(1), 10),
			name:      name,
			colType:   colType,
			documents: xsync.NewMapOf[string, mockDocument](),
		}
	})
	return !loaded
}

// CollectionQueries returns how often the metadata of a collection was requested
func (m *MockDatabase) CollectionQueries(name string) int64 {
	if counter, ok := m.queries.Load(name); ok {
		return counter.Load()
	}
	return 0
}

// SetLatency delays every request by d
func (m *MockDatabase) SetLatency(d time.Duration) {
	m.latency.Store(int64(d))
}

// --------------------------------------------------------------------------
// Interface Methods (docu see server.IRequestHandler)
// --------------------------------------------------------------------------

func (m *MockDatabase) Handle(req common.Request) common.Response {
	if d := time.Duration(m.latency.Load()); d > 0 {
		time.Sleep(d)
	}

	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "_api" {
		return m.errorResponse(404, ErrNumHTTPNotFound, "unknown path "+req.Path)
	}

	switch parts[1] {
	case "version":
		if req.Method != common.MethodGet {
			return m.methodNotAllowed(req)
		}
		return m.response(200, map[string]interface{}{
			"server":  "arango",
			"version": MockVersion,
			"license": "community",
		})
	case "collection":
		return m.handleCollection(req, parts[2:])
	case "document":
		return m.handleDocument(req, parts[2:])
	default:
		return m.errorResponse(404, ErrNumHTTPNotFound, "unknown path "+req.Path)
	}
}

// --------------------------------------------------------------------------
// Collection Endpoints
// --------------------------------------------------------------------------

func (m *MockDatabase) handleCollection(req common.Request, args []string) common.Response {
	switch {
	case req.Method == common.MethodGet && len(args) == 1:
		counter, _ := m.queries.LoadOrCompute(args[0], func() *atomic.Int64 { return &atomic.Int64{} })
		counter.Add(1)

		col, ok := m.collections.Load(args[0])
		if !ok {
			return m.errorResponse(404, ErrNumCollectionNotFound, "collection or view not found")
		}
		return m.response(200, col.info())

	case req.Method == common.MethodPost && len(args) == 0:
		var body struct {
			Name string `json:"name"`
			Type int    `json:"type"`
		}
		if err := m.serializer.Unmarshal(req.Body, &body); err != nil || body.Name == "" {
			return m.errorResponse(400, ErrNumBadParameter, "expected a collection name")
		}
		if body.Type == 0 {
			body.Type = CollectionTypeDocument
		}
		if !m.CreateCollection(body.Name, body.Type) {
			return m.errorResponse(409, ErrNumDuplicateName, "duplicate name")
		}
		col, _ := m.collections.Load(body.Name)
		return m.response(200, col.info())

	case req.Method == common.MethodDelete && len(args) == 1:
		col, ok := m.collections.LoadAndDelete(args[0])
		if !ok {
			return m.errorResponse(404, ErrNumCollectionNotFound, "collection or view not found")
		}
		return m.response(200, map[string]interface{}{"id": col.id})

	default:
		return m.methodNotAllowed(req)
	}
}

func (c *mockCollection) info() map[string]interface{} {
	return map[string]interface{}{
		"id":       c.id,
		"name":     c.name,
		"type":     c.colType,
		"status":   3,
		"isSystem": strings.HasPrefix(c.name, "_"),
	}
}

// --------------------------------------------------------------------------
// Document Endpoints
// --------------------------------------------------------------------------

func (m *MockDatabase) handleDocument(req common.Request, args []string) common.Response {
	if len(args) == 0 || len(args) > 2 {
		return m.errorResponse(404, ErrNumHTTPNotFound, "expected /_api/document/{collection}[/{key}]")
	}
	col, ok := m.collections.Load(args[0])
	if !ok {
		return m.errorResponse(404, ErrNumCollectionNotFound, "collection or view not found")
	}

	if len(args) == 1 {
		if req.Method != common.MethodPost {
			return m.methodNotAllowed(req)
		}
		return m.insertDocument(col, req)
	}

	key := args[1]
	switch req.Method {
	case common.MethodGet, common.MethodHead:
		doc, ok := col.documents.Load(key)
		if !ok {
			return m.errorResponse(404, ErrNumDocumentNotFound, "document not found")
		}
		if ifMatch := unquote(req.Headers["if-match"]); ifMatch != "" && ifMatch != doc.rev {
			return m.preconditionFailed(doc.rev)
		}
		return m.withEtag(m.response(200, col.fullDocument(key, doc)), doc.rev)
	case common.MethodPut:
		return m.replaceDocument(col, key, req)
	case common.MethodDelete:
		return m.deleteDocument(col, key, req)
	default:
		return m.methodNotAllowed(req)
	}
}

func (m *MockDatabase) insertDocument(col *mockCollection, req common.Request) common.Response {
	body := map[string]interface{}{}
	if err := m.serializer.Unmarshal(req.Body, &body); err != nil {
		return m.errorResponse(400, ErrNumBadParameter, fmt.Sprintf("invalid document: %v", err))
	}

	key, _ := body["_key"].(string)
	if key == "" {
		key = ksuid.New().String()
	}
	doc := mockDocument{rev: m.revision(), body: stripSystemAttributes(body)}

	if _, loaded := col.documents.LoadOrStore(key, doc); loaded {
		return m.errorResponse(409, ErrNumUniqueConstraintViolated, "unique constraint violated")
	}
	return m.withEtag(m.response(201, col.handle(key, doc.rev)), doc.rev)
}

func (m *MockDatabase) replaceDocument(col *mockCollection, key string, req common.Request) common.Response {
	body := map[string]interface{}{}
	if err := m.serializer.Unmarshal(req.Body, &body); err != nil {
		return m.errorResponse(400, ErrNumBadParameter, fmt.Sprintf("invalid document: %v", err))
	}
	ifMatch := unquote(req.Headers["if-match"])

	var (
		status = 201
		oldRev string
		newDoc = mockDocument{rev: m.revision(), body: stripSystemAttributes(body)}
	)
	col.documents.Compute(key, func(old mockDocument, loaded bool) (mockDocument, bool) {
		switch {
		case !loaded:
			status = 404
			return old, true
		case ifMatch != "" && ifMatch != old.rev:
			status, oldRev = 412, old.rev
			return old, false
		default:
			oldRev = old.rev
			return newDoc, false
		}
	})

	switch status {
	case 404:
		return m.errorResponse(404, ErrNumDocumentNotFound, "document not found")
	case 412:
		return m.preconditionFailed(oldRev)
	}
	result := col.handle(key, newDoc.rev)
	result["_oldRev"] = oldRev
	return m.withEtag(m.response(201, result), newDoc.rev)
}

func (m *MockDatabase) deleteDocument(col *mockCollection, key string, req common.Request) common.Response {
	ifMatch := unquote(req.Headers["if-match"])

	var (
		status = 200
		rev    string
	)
	col.documents.Compute(key, func(old mockDocument, loaded bool) (mockDocument, bool) {
		switch {
		case !loaded:
			status = 404
			return old, true
		case ifMatch != "" && ifMatch != old.rev:
			status, rev = 412, old.rev
			return old, false
		default:
			rev = old.rev
			return old, true
		}
	})

	switch status {
	case 404:
		return m.errorResponse(404, ErrNumDocumentNotFound, "document not found")
	case 412:
		return m.preconditionFailed(rev)
	}
	return m.response(200, col.handle(key, rev))
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *mockCollection) handle(key, rev string) map[string]interface{} {
	return map[string]interface{}{
		"_id":  c.name + "/" + key,
		"_key": key,
		"_rev": rev,
	}
}

func (c *mockCollection) fullDocument(key string, doc mockDocument) map[string]interface{} {
	result := c.handle(key, doc.rev)
	for k, v := range doc.body {
		result[k] = v
	}
	return result
}

// revision returns a new opaque revision token
func (m *MockDatabase) revision() string {
	return "_" + strconv.FormatUint(uint64(time.Now().UnixNano())<<8|m.nextRev.Add(1)&0xff, 36)
}

func (m *MockDatabase) response(code int, body interface{}) common.Response {
	data, err := m.serializer.Marshal(body)
	if err != nil {
		return m.errorResponse(500, 4, fmt.Sprintf("failed to encode response: %v", err))
	}
	return common.Response{
		Version:    common.EnvelopeVersion,
		Type:       common.MsgTResponse,
		StatusCode: code,
		Body:       data,
	}
}

func (m *MockDatabase) withEtag(resp common.Response, rev string) common.Response {
	resp.Headers = map[string]string{"etag": strconv.Quote(rev)}
	return resp
}

func (m *MockDatabase) errorResponse(code, errorNum int, message string) common.Response {
	return ErrorResponse(m.serializer, code, errorNum, message)
}

func (m *MockDatabase) preconditionFailed(rev string) common.Response {
	return m.withEtag(m.errorResponse(412, ErrNumPreconditionFailed, "precondition failed"), rev)
}

func (m *MockDatabase) methodNotAllowed(req common.Request) common.Response {
	return m.errorResponse(405, ErrNumHTTPMethodNotAllowed, fmt.Sprintf("method %s not allowed for %s", req.Method, req.Path))
}

// stripSystemAttributes removes the attributes maintained by the server
func stripSystemAttributes(body map[string]interface{}) map[string]interface{} {
	for _, attr := range []string{"_id", "_key", "_rev", "_oldRev"} {
		delete(body, attr)
	}
	return body
}

func unquote(s string) string {
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s
}
