// Package unix implements a transport for the VST client and the in-process
// server using Unix domain sockets. It is meant for endpoints running on the
// same machine, e.g. a local server or the mock endpoint of `avst serve`.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets.
//     ConnectionConfig.SocketPath selects this transport.
//
//   - serverConnector: Creates Unix socket listeners and accepts connections
//
// Performance Characteristics:
//
//   - Reduced overhead: Eliminates TCP/IP stack processing
//   - No TLS: the socket never leaves the host
package unix
