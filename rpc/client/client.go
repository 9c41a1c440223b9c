package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/arangovst/lib/cache"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"github.com/ValentinKolb/arangovst/rpc/transport"
	"github.com/ValentinKolb/arangovst/rpc/transport/base"
	"github.com/ValentinKolb/arangovst/rpc/transport/tcp"
	"github.com/ValentinKolb/arangovst/rpc/transport/unix"
	"io"
	"sync/atomic"
)

// Client is the entry point of the driver core. It owns the connection
// pools, both executors and both caches. Several clients in one process
// share nothing.
type Client struct {
	config      common.ClientConfig
	serializer  serializer.IRPCSerializer
	executor    *Executor
	metadata    *Executor
	collections *cache.CollectionCache
	documents   *cache.DocumentCache
	closed      atomic.Bool
}

// New creates a client for the configured endpoint. A unix socket is used if
// config.Connection.SocketPath is set, TCP otherwise. No connection is opened
// before the first request.
//
// Usage:
//
//	c, err := client.New(common.DefaultClientConfig())
//	if err != nil {
//		panic(err)
//	}
//	defer c.Shutdown()
//	version, err := c.GetVersion(ctx).Await(ctx)
func New(config common.ClientConfig) (*Client, error) {
	var connector transport.IClientConnector
	if config.Connection.SocketPath != "" {
		connector = unix.NewClientConnector()
	} else {
		connector = tcp.NewClientConnector()
	}
	return NewWithConnector(config, connector)
}

// NewWithConnector creates a client using the given connector
func NewWithConnector(config common.ClientConfig, connector transport.IClientConnector) (*Client, error) {
	config = config.Normalize()
	s, err := serializer.New(config.Serializer)
	if err != nil {
		return nil, err
	}

	// Phase 1: caches and the executor used for all requests
	c := &Client{
		config:      config,
		serializer:  s,
		collections: cache.NewCollectionCache(),
		documents:   cache.NewBoundedDocumentCache(config.DocumentCacheSize),
		executor:    NewExecutor("main", base.NewPool(connector, config, s), s),
	}

	// Phase 2: metadata queries get their own pool and executor, they never
	// consult the collection cache
	metaConfig := config
	metaConfig.MaxConnections = 1
	c.metadata = NewExecutor("metadata", base.NewPool(connector, metaConfig, s), s)
	c.collections.Init(&metadataAccess{
		executor:   c.metadata,
		serializer: s,
		database:   config.Database,
	})

	Logger.Debugf("Created %s client for %s", connector.GetName(), config.Connection.Endpoint())
	return c, nil
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// Execute sends a raw request, the future completes with the response.
// Non-2xx replies fail with common.RequestFailedError.
func (c *Client) Execute(ctx context.Context, req common.Request) *Future[common.Response] {
	return Execute(ctx, c.executor, req, RawResponse)
}

// Executor returns the executor used for all application requests
func (c *Client) Executor() *Executor {
	return c.executor
}

// Collections returns the collection cache of this client
func (c *Client) Collections() *cache.CollectionCache {
	return c.collections
}

// Documents returns the document revision cache of this client
func (c *Client) Documents() *cache.DocumentCache {
	return c.documents
}

// Serializer returns the serializer used for bodies
func (c *Client) Serializer() serializer.IRPCSerializer {
	return c.serializer
}

// Config returns the normalized configuration
func (c *Client) Config() common.ClientConfig {
	return c.config
}

// WritePrometheus writes the metrics of both executors
func (c *Client) WritePrometheus(w io.Writer) {
	c.executor.WritePrometheus(w)
	c.metadata.WritePrometheus(w)
}

// Shutdown closes all connections. Pending calls fail with common.ErrClosed,
// later calls fail fast with common.ErrClosed.
func (c *Client) Shutdown() error {
	if c.closed.Swap(true) {
		return nil
	}
	Logger.Debugf("Shutting down client for %s", c.config.Connection.Endpoint())
	return errors.Join(c.executor.Close(), c.metadata.Close())
}

// --------------------------------------------------------------------------
// Metadata Access (implements cache.DBAccess)
// --------------------------------------------------------------------------

// metadataAccess resolves collection types through the metadata executor
type metadataAccess struct {
	executor   *Executor
	serializer serializer.IValueSerializer
	database   string
}

func (m *metadataAccess) CollectionType(ctx context.Context, name string) (cache.CollectionType, error) {
	req := common.NewRequest(m.database, common.MethodGet, collectionPath(name))
	info, err := ExecuteSync(ctx, m.executor, req, DecodeBody[CollectionInfo](m.serializer))
	if common.IsStatus(err, 404) {
		return cache.CollectionUnknown, &common.CollectionNotFoundError{Name: name}
	}
	if err != nil {
		return cache.CollectionUnknown, fmt.Errorf("failed to query collection %q: %w", name, err)
	}
	return info.Type, nil
}
