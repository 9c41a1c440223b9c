package unix

import (
	"context"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"github.com/ValentinKolb/arangovst/rpc/transport"
	"github.com/ValentinKolb/arangovst/rpc/transport/base"
	"net"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct {
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	return c.dialer.DialContext(ctx, "unix", endpoint)
}

// UpgradeConnection is a no-op, socket options and TLS do not apply to local sockets
func (c *clientConnector) UpgradeConnection(_ context.Context, conn net.Conn, _ common.ClientConfig) (net.Conn, error) {
	return conn, nil
}

// --------------------------------------------------------------------------
// Client Factory Methods
// --------------------------------------------------------------------------

// NewClientConnector creates a new Unix socket connector
func NewClientConnector() transport.IClientConnector {
	return &clientConnector{}
}

// NewUnixClientPool creates a new connection pool using Unix sockets
func NewUnixClientPool(config common.ClientConfig, s serializer.IRPCSerializer) *base.Pool {
	return base.NewPool(NewClientConnector(), config, s)
}
