// Package server implements a minimal VelocyStream endpoint. It is used by the
// tests of the client packages and by `avst serve` to run the client against a
// local endpoint without a database server.
//
// The package focuses on:
//   - The server side of the protocol: magic, authentication, chunked messages
//   - Concurrent request handling with a bounded number of workers per connection
//   - Replies in completion order, correlated to their request by message id
//   - Adapter pattern to decouple the protocol from the request handling
//
// Key Components:
//
//   - IRequestHandler: Interface defining the contract for all handlers, with
//     the Handle method that turns a request into a response. HandlerFunc adapts
//     plain functions.
//
//   - VSTServer: Accepts connections using a transport.IServerConnector (tcp or
//     unix), checks the protocol magic and the credentials of the client, and
//     dispatches requests to the handler. Replies are split into chunks of the
//     configured chunk size. CloseConnections drops all clients while the
//     server keeps listening.
//
//   - MockDatabase: In-memory adapter implementing the version, collection and
//     document endpoints including revisions and if-match preconditions.
//
// Usage Example:
//
//	config := common.DefaultServerConfig()
//	config.Endpoint = "127.0.0.1:8529"
//
//	db := server.NewMockDatabase(serializer.NewVelocyPackSerializer())
//	db.CreateCollection("edges", server.CollectionTypeEdge)
//
//	s, err := server.NewVSTServer(config, tcp.NewServerConnector(), db)
//	if err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The server and the mock database are thread-safe. Each connection is
//	handled by its own goroutine, writes to a connection are serialized so the
//	chunks of one reply are never interleaved with another.
package server
