// Package common provides core data structures and utilities shared across
// the VelocyStream (VST) client. It defines the logical request and response
// model, the error taxonomy, configuration structures and logging setup used
// by the other packages.
//
// The package focuses on:
//   - Request/Response model for every operation sent over a VST connection
//   - Error types that classify every way a call can fail
//   - Configuration structures for connections and clients
//   - Custom logging integrated with Dragonboat's logger facade
//
// Key Components:
//
//   - Request: Immutable description of a database operation (database, method,
//     path, headers, query parameters and body). The With* helpers return copies.
//
//   - Response: Decoded reply of the server (status code, headers and body).
//
//   - MessageType / RequestMethod: Enumerations whose numeric values are part of
//     the VST envelope and therefore fixed.
//
//   - Errors: MalformedFrameError, CommunicationError, TimeoutError,
//     RequestFailedError, DeserializationError, CollectionNotFoundError and the
//     ErrClosed sentinel. Use errors.Is / errors.As to inspect them.
//
//   - ClientConfig / ConnectionConfig: Connection parameters (host, port, timeout,
//     credentials, TLS, chunk size) plus pool and socket settings.
//
//   - Logger: Implementation of Dragonboat's logger.ILogger that writes through
//     zerolog, either human readable or as JSON.
package common
