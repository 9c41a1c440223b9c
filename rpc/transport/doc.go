// Package transport defines the abstractions the VST connection layer is
// built on. It provides the contract that all transport implementations must
// fulfill, enabling the same channel and pool logic to run over TCP (with
// optional TLS) and Unix sockets.
//
// Key Components:
//
//   - IClientConnector: Opens and upgrades a single client connection.
//
//   - IServerConnector: Creates listeners and upgrades accepted connections,
//     used by the in-process server.
//
//   - ChannelState: Lifecycle of a connection channel.
//
// The channel and pool implementations live in the base package, the
// connectors in the tcp and unix packages.
package transport
