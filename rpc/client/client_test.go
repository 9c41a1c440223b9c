package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/arangovst/lib/cache"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"github.com/ValentinKolb/arangovst/rpc/server"
	"github.com/ValentinKolb/arangovst/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Test Helpers
// --------------------------------------------------------------------------

// startServer starts a VST endpoint on a random local port
func startServer(t *testing.T, handler server.IRequestHandler, configure func(*common.ServerConfig)) *server.VSTServer {
	t.Helper()
	config := common.DefaultServerConfig()
	config.Endpoint = "127.0.0.1:0"
	if configure != nil {
		configure(&config)
	}
	s, err := server.NewVSTServer(config, tcp.NewServerConnector(), handler)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newTestClient creates a client connected to the given server
func newTestClient(t *testing.T, s *server.VSTServer, configure func(*common.ClientConfig)) *Client {
	t.Helper()
	host, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)

	config := common.DefaultClientConfig()
	config.Connection.Host = host
	config.Connection.Port, _ = strconv.Atoi(port)
	config.Connection.User = ""
	if configure != nil {
		configure(&config)
	}

	c, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

// newMockSetup starts a server backed by a mock database and a client for it
func newMockSetup(t *testing.T, configure func(*common.ClientConfig)) (*Client, *server.MockDatabase, *server.VSTServer) {
	t.Helper()
	db := server.NewMockDatabase(serializer.NewVelocyPackSerializer())
	s := startServer(t, db, nil)
	return newTestClient(t, s, configure), db, s
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// echoBody replies with the request body
var echoBody = server.HandlerFunc(func(req common.Request) common.Response {
	return common.Response{StatusCode: 200, Body: req.Body}
})

// --------------------------------------------------------------------------
// Executor
// --------------------------------------------------------------------------

func TestExecutor_RoundTrip(t *testing.T) {
	c, _, _ := newMockSetup(t, nil)

	version, err := c.GetVersion(testCtx(t)).Await(testCtx(t))

	require.NoError(t, err)
	assert.Equal(t, server.MockVersion, version.Version)
	assert.Equal(t, "arango", version.Server)
}

func TestExecutor_ChunkedBody(t *testing.T) {
	s := startServer(t, echoBody, func(config *common.ServerConfig) { config.ChunkSize = 4000 })
	c := newTestClient(t, s, func(config *common.ClientConfig) { config.Connection.ChunkSize = 4000 })

	body := []byte(strings.Repeat("0123456789", 1000))
	req := common.NewRequest("_system", common.MethodPost, "/_api/echo").WithBody(body)

	resp, err := c.Execute(testCtx(t), req).Await(testCtx(t))

	require.NoError(t, err)
	assert.Equal(t, body, resp.Body)
}

func TestExecutor_RequestFailed(t *testing.T) {
	c, _, _ := newMockSetup(t, nil)

	called := false
	req := common.NewRequest("_system", common.MethodGet, "/_api/collection/missing")
	_, err := ExecuteSync(testCtx(t), c.Executor(), req, func(resp common.Response) (string, error) {
		called = true
		return "", nil
	})

	var failed *common.RequestFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 404, failed.StatusCode)
	assert.Equal(t, server.ErrNumCollectionNotFound, failed.ErrorNum)
	assert.NotEmpty(t, failed.ErrorMessage)
	assert.False(t, called, "the transform must not run for non-2xx replies")
}

func TestExecutor_DeserializationError(t *testing.T) {
	c, _, _ := newMockSetup(t, nil)
	req := common.NewRequest("_system", common.MethodGet, "/_api/version")

	t.Run("transform error", func(t *testing.T) {
		_, err := ExecuteSync(testCtx(t), c.Executor(), req, func(common.Response) (int, error) {
			return 0, errors.New("boom")
		})

		var deserialize *common.DeserializationError
		require.ErrorAs(t, err, &deserialize)
		assert.EqualError(t, deserialize.Err, "boom")
	})

	t.Run("transform panic", func(t *testing.T) {
		_, err := ExecuteSync(testCtx(t), c.Executor(), req, func(common.Response) (int, error) {
			panic("unexpected")
		})

		var deserialize *common.DeserializationError
		assert.ErrorAs(t, err, &deserialize)
	})

	t.Run("wrong result type", func(t *testing.T) {
		_, err := ExecuteSync(testCtx(t), c.Executor(), req, DecodeBody[[]int](c.Serializer()))

		var deserialize *common.DeserializationError
		assert.ErrorAs(t, err, &deserialize)
	})
}

func TestExecutor_Concurrent(t *testing.T) {
	const n = 100

	s := startServer(t, echoBody, nil)
	c := newTestClient(t, s, func(config *common.ClientConfig) {
		config.MaxConnections = 4
		config.Connection.ChunkSize = 64
	})

	futures := make([]*Future[common.Response], n)
	for i := 0; i < n; i++ {
		body := []byte(fmt.Sprintf("request-%d-%s", i, strings.Repeat("x", i*3)))
		futures[i] = c.Execute(testCtx(t), common.NewRequest("_system", common.MethodPost, "/echo").WithBody(body))
	}

	for i, f := range futures {
		resp, err := f.Await(testCtx(t))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(resp.Body), fmt.Sprintf("request-%d-", i)))
	}
}

func TestExecutor_Timeout(t *testing.T) {
	c, db, _ := newMockSetup(t, func(config *common.ClientConfig) {
		config.Connection.Timeout = 50 * time.Millisecond
	})
	db.SetLatency(300 * time.Millisecond)

	_, err := c.GetVersion(testCtx(t)).Await(testCtx(t))

	var timeoutErr *common.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestExecutor_Cancel(t *testing.T) {
	c, db, _ := newMockSetup(t, nil)
	db.SetLatency(200 * time.Millisecond)

	f := c.GetVersion(context.Background())
	assert.True(t, f.Cancel())
	assert.False(t, f.Cancel(), "a future completes only once")

	_, err := f.Await(testCtx(t))
	assert.ErrorIs(t, err, context.Canceled)

	// The discarded reply must not break the connection
	db.SetLatency(0)
	time.Sleep(300 * time.Millisecond)
	_, err = c.GetVersion(testCtx(t)).Await(testCtx(t))
	assert.NoError(t, err)
}

func TestExecutor_CommunicationError(t *testing.T) {
	c, db, s := newMockSetup(t, nil)
	db.SetLatency(200 * time.Millisecond)

	f := c.GetVersion(testCtx(t))
	// Wait until the request reached the server
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, s.CloseConnections())

	_, err := f.Await(testCtx(t))
	var commErr *common.CommunicationError
	require.ErrorAs(t, err, &commErr)

	// The next request reconnects, there is no retry of the failed one
	db.SetLatency(0)
	_, err = c.GetVersion(testCtx(t)).Await(testCtx(t))
	assert.NoError(t, err)
}

func TestExecutor_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	config := common.DefaultClientConfig()
	config.Connection.Host = "127.0.0.1"
	config.Connection.Port = addr.Port
	config.Connection.User = ""
	c, err := New(config)
	require.NoError(t, err)
	defer c.Shutdown()

	_, err = c.GetVersion(testCtx(t)).Await(testCtx(t))
	var commErr *common.CommunicationError
	assert.ErrorAs(t, err, &commErr)
}

func TestExecutor_Authentication(t *testing.T) {
	db := server.NewMockDatabase(serializer.NewVelocyPackSerializer())
	s := startServer(t, db, func(config *common.ServerConfig) {
		config.User = "root"
		config.Password = "secret"
	})

	t.Run("valid credentials", func(t *testing.T) {
		c := newTestClient(t, s, func(config *common.ClientConfig) {
			config.Connection.User = "root"
			config.Connection.Password = "secret"
		})
		_, err := c.GetVersion(testCtx(t)).Await(testCtx(t))
		assert.NoError(t, err)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		c := newTestClient(t, s, func(config *common.ClientConfig) {
			config.Connection.User = "root"
			config.Connection.Password = "wrong"
		})
		_, err := c.GetVersion(testCtx(t)).Await(testCtx(t))

		var commErr *common.CommunicationError
		require.ErrorAs(t, err, &commErr)
		assert.True(t, common.IsStatus(err, 401))
	})
}

func TestClient_Shutdown(t *testing.T) {
	c, db, _ := newMockSetup(t, nil)
	db.SetLatency(500 * time.Millisecond)

	pending := c.GetVersion(testCtx(t))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, c.Shutdown())

	_, err := pending.Await(testCtx(t))
	assert.ErrorIs(t, err, common.ErrClosed)

	// Fails fast without touching the network
	f := c.GetVersion(testCtx(t))
	select {
	case <-f.Done():
	default:
		t.Fatal("expected an already completed future after shutdown")
	}
	_, err = f.Await(testCtx(t))
	assert.ErrorIs(t, err, common.ErrClosed)
}

func TestClient_Metrics(t *testing.T) {
	c, _, _ := newMockSetup(t, nil)

	_, err := c.GetVersion(testCtx(t)).Await(testCtx(t))
	require.NoError(t, err)
	_, err = c.CollectionInfo(testCtx(t), "missing").Await(testCtx(t))
	require.Error(t, err)

	var sb strings.Builder
	c.WritePrometheus(&sb)
	assert.Contains(t, sb.String(), `vst_requests_total{executor="main"} 2`)
	assert.Equal(t, uint64(1), c.Executor().metrics.errorCount(kindRequestFailed))
}

// --------------------------------------------------------------------------
// Collection Cache
// --------------------------------------------------------------------------

func TestClient_CollectionType(t *testing.T) {
	c, db, _ := newMockSetup(t, nil)
	db.CreateCollection("edges", server.CollectionTypeEdge)

	first, err := c.CollectionType(testCtx(t), "edges").Await(testCtx(t))
	require.NoError(t, err)
	second, err := c.CollectionType(testCtx(t), "edges").Await(testCtx(t))
	require.NoError(t, err)

	assert.Equal(t, cache.CollectionEdge, first)
	assert.Equal(t, cache.CollectionEdge, second)
	assert.Equal(t, int64(1), db.CollectionQueries("edges"))
}

func TestClient_CollectionTypeSingleFlight(t *testing.T) {
	c, db, _ := newMockSetup(t, nil)
	db.CreateCollection("col", server.CollectionTypeDocument)
	db.SetLatency(50 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			colType, err := c.CollectionType(testCtx(t), "col").Await(testCtx(t))
			assert.NoError(t, err)
			assert.Equal(t, cache.CollectionDocument, colType)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), db.CollectionQueries("col"))
}

func TestClient_CollectionNotFound(t *testing.T) {
	c, db, _ := newMockSetup(t, nil)

	_, err := c.CollectionType(testCtx(t), "missing").Await(testCtx(t))
	var notFound *common.CollectionNotFoundError
	require.ErrorAs(t, err, &notFound)

	// Not cached, the next resolve asks the server again
	db.CreateCollection("missing", server.CollectionTypeDocument)
	colType, err := c.CollectionType(testCtx(t), "missing").Await(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, cache.CollectionDocument, colType)
	assert.Equal(t, int64(2), db.CollectionQueries("missing"))
}

func TestClient_InsertEdge(t *testing.T) {
	c, db, _ := newMockSetup(t, nil)
	db.CreateCollection("persons", server.CollectionTypeDocument)
	db.CreateCollection("knows", server.CollectionTypeEdge)

	alice, err := c.InsertDocument(testCtx(t), "persons", map[string]interface{}{"_key": "alice"}).Await(testCtx(t))
	require.NoError(t, err)
	bob, err := c.InsertDocument(testCtx(t), "persons", map[string]interface{}{"_key": "bob"}).Await(testCtx(t))
	require.NoError(t, err)
	from, _ := alice.Handle()
	to, _ := bob.Handle()

	edge, err := c.InsertEdge(testCtx(t), "knows", from, to, map[string]interface{}{"since": 2020}).Await(testCtx(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(edge.ID, "knows/"))

	var stored map[string]interface{}
	_, err = c.GetDocument(testCtx(t), cache.NewHandle("knows", edge.Key), &stored).Await(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "persons/alice", stored["_from"])
	assert.Equal(t, "persons/bob", stored["_to"])

	_, err = c.InsertEdge(testCtx(t), "persons", from, to, nil).Await(testCtx(t))
	assert.ErrorContains(t, err, "expected edge")
}

func TestClient_CreateAndDropCollection(t *testing.T) {
	c, _, _ := newMockSetup(t, nil)

	info, err := c.CreateCollection(testCtx(t), "col", cache.CollectionEdge).Await(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, cache.CollectionEdge, info.Type)

	colType, err := c.CollectionType(testCtx(t), "col").Await(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, cache.CollectionEdge, colType)

	_, err = c.DropCollection(testCtx(t), "col").Await(testCtx(t))
	require.NoError(t, err)
	_, cached := c.Collections().Lookup("col")
	assert.False(t, cached)
}

// --------------------------------------------------------------------------
// Document Cache
// --------------------------------------------------------------------------

func TestClient_RevisionIsCached(t *testing.T) {
	ser := serializer.NewVelocyPackSerializer()
	s := startServer(t, server.HandlerFunc(func(req common.Request) common.Response {
		body, _ := ser.Marshal(map[string]string{"_id": "mycol/key1", "_key": "key1", "_rev": "_rev123"})
		return common.Response{StatusCode: 201, Body: body}
	}), nil)
	c := newTestClient(t, s, nil)

	meta, err := c.InsertDocument(testCtx(t), "mycol", map[string]string{"_key": "key1"}).Await(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "_rev123", meta.Rev)

	rev, ok := c.Documents().Get(cache.NewHandle("mycol", "key1"))
	assert.True(t, ok)
	assert.Equal(t, "_rev123", rev)
}

func TestClient_DocumentLifecycle(t *testing.T) {
	c, db, _ := newMockSetup(t, nil)
	db.CreateCollection("mycol", server.CollectionTypeDocument)
	h := cache.NewHandle("mycol", "key1")

	inserted, err := c.InsertDocument(testCtx(t), "mycol", map[string]interface{}{"_key": "key1", "n": 1}).Await(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "mycol/key1", inserted.ID)

	var doc struct {
		N int `json:"n"`
	}
	read, err := c.GetDocument(testCtx(t), h, &doc).Await(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.N)
	assert.Equal(t, inserted.Rev, read.Rev)

	replaced, err := c.ReplaceDocument(testCtx(t), h, map[string]interface{}{"n": 2}).Await(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, inserted.Rev, replaced.OldRev)
	rev, _ := c.Documents().Get(h)
	assert.Equal(t, replaced.Rev, rev)

	_, err = c.DeleteDocument(testCtx(t), h).Await(testCtx(t))
	require.NoError(t, err)
	_, ok := c.Documents().Get(h)
	assert.False(t, ok)

	_, err = c.GetDocument(testCtx(t), h, nil).Await(testCtx(t))
	assert.True(t, common.IsStatus(err, 404))
}

func TestClient_StaleRevision(t *testing.T) {
	c, db, _ := newMockSetup(t, nil)
	db.CreateCollection("mycol", server.CollectionTypeDocument)
	h := cache.NewHandle("mycol", "key1")

	_, err := c.InsertDocument(testCtx(t), "mycol", map[string]interface{}{"_key": "key1"}).Await(testCtx(t))
	require.NoError(t, err)

	// Another client changed the document in the meantime
	c.Documents().Put(h, "_stale")

	_, err = c.ReplaceDocument(testCtx(t), h, map[string]interface{}{"n": 2}).Await(testCtx(t))
	assert.True(t, common.IsStatus(err, 412))
	_, ok := c.Documents().Get(h)
	assert.False(t, ok, "a rejected precondition evicts the cached revision")

	// Without a cached revision the replace is unconditional
	_, err = c.ReplaceDocument(testCtx(t), h, map[string]interface{}{"n": 3}).Await(testCtx(t))
	assert.NoError(t, err)
}
