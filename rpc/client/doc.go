// Package client implements the asynchronous request execution of the VST driver.
//
// The package focuses on:
//   - Non-blocking execution of requests over a pool of multiplexed connections
//   - Composable futures with cancellation
//   - Conversion of replies into typed results and of failures into the error taxonomy of rpc/common
//
// Key Components:
//
//   - Executor: Sends requests through a base.Pool. Execute returns a Future that
//     completes with the result of a TransformFunc. ExecuteSync is Execute followed
//     by Await, both share one implementation. The executor never retries.
//
//   - Future: Completes exactly once. Await waits with a context, Cancel abandons the
//     call (the request itself is not retracted). Then, Handle and ThenAsync chain
//     further steps, Go runs any function as a future.
//
//   - Client: Owns two executors and both caches. The collection cache is created
//     first and gets its database access injected once the metadata executor exists.
//     Metadata queries use their own single connection pool and never consult the
//     collection cache.
//
//   - Builders: GetVersion, CollectionInfo, CollectionType, CreateCollection,
//     DropCollection, GetDocument, InsertDocument, InsertEdge, ReplaceDocument and
//     DeleteDocument build a request and a transform. Document operations keep the
//     document cache up to date and send if-match preconditions from it.
//
// Usage Example:
//
//	config := common.DefaultClientConfig()
//	config.Connection.Password = "secret"
//
//	c, err := client.New(config)
//	if err != nil {
//		panic(err)
//	}
//	defer c.Shutdown()
//
//	// Typed requests
//	meta, err := c.InsertDocument(ctx, "mycol", map[string]interface{}{"a": 1}).Await(ctx)
//
//	// Raw requests with a custom transform
//	req := common.NewRequest("_system", common.MethodGet, "/_api/version")
//	f := client.Execute(ctx, c.Executor(), req, client.DecodeBody[client.VersionInfo](c.Serializer()))
//	version, err := f.Await(ctx)
//
// Errors:
//
//   - common.ErrClosed: the client was shut down
//   - common.CommunicationError: the connection failed, the next request reconnects
//   - common.TimeoutError: no reply within ConnectionConfig.Timeout
//   - common.RequestFailedError: the server replied with a non-2xx status
//   - common.DeserializationError: the transform failed
//   - common.CollectionNotFoundError: the collection cache could not resolve a name
//
// Metrics:
//
// Each executor keeps a VictoriaMetrics set with vst_requests_total,
// vst_request_errors_total, vst_request_duration_seconds and
// vst_requests_inflight, labelled with the executor name (main or metadata).
// Client.WritePrometheus writes both sets.
package client
