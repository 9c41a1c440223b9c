// Package tcp implements the TCP transport of the VST client and of the
// in-process server. It provides concrete implementations of the connector
// interfaces of the transport package.
//
// This package builds on the base package's channel and pool, see the base
// package documentation for the multiplexing and failure handling.
//
// Key Components:
//
//   - clientConnector: Dials TCP connections, applies the socket options
//     (no delay, buffer sizes, keep-alive, linger) and wraps the connection
//     with TLS if UseSSL is set. Without an injected tls.Config the server
//     certificate is verified against the configured host.
//
//   - serverConnector: Creates TCP listeners and accepted connections,
//     optionally terminating TLS.
package tcp
