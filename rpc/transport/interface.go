package transport

import (
	"context"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"net"
)

// --------------------------------------------------------------------------
// Client Connector
// --------------------------------------------------------------------------

// IClientConnector defines the transport-specific part of opening a connection.
// Everything protocol related (magic, authentication, framing) is done by the
// channel in the base package.
type IClientConnector interface {
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// Connect establishes a single connection to the endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// UpgradeConnection applies socket options and, if enabled, wraps the
	// connection with TLS. The returned connection replaces the given one.
	UpgradeConnection(ctx context.Context, conn net.Conn, config common.ClientConfig) (net.Conn, error)
}

// --------------------------------------------------------------------------
// Server Connector
// --------------------------------------------------------------------------

// IServerConnector defines the transport-specific part of accepting connections
type IServerConnector interface {
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// Listen creates a listener on the endpoint of the config
	Listen(config common.ServerConfig) (net.Listener, error)

	// UpgradeConnection applies socket options to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) (net.Conn, error)
}

// --------------------------------------------------------------------------
// Channel State
// --------------------------------------------------------------------------

// ChannelState is the lifecycle state of a connection channel:
//
//	Disconnected -> Connecting -> Connected -> Disconnected (on error) -> Closed
type ChannelState int32

const (
	StateDisconnected ChannelState = iota
	StateConnecting
	StateConnected
	StateClosed
)

// String returns the string representation of a ChannelState
func (s ChannelState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
