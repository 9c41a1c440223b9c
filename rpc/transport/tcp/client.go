package tcp

import (
	"context"
	"crypto/tls"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"github.com/ValentinKolb/arangovst/rpc/transport"
	"github.com/ValentinKolb/arangovst/rpc/transport/base"
	"net"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct {
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	return c.dialer.DialContext(ctx, "tcp", endpoint)
}

func (c *clientConnector) UpgradeConnection(ctx context.Context, conn net.Conn, config common.ClientConfig) (net.Conn, error) {
	if err := applySocketOptions(conn, config.TCPConf, config.SocketConf); err != nil {
		return nil, err
	}

	if !config.Connection.UseSSL {
		return conn, nil
	}

	// Use a copy of the injected context, the host name is verified unless
	// the context names another server or skips verification
	tlsConfig := &tls.Config{}
	if config.Connection.TLSConfig != nil {
		tlsConfig = config.Connection.TLSConfig.Clone()
	}
	if tlsConfig.ServerName == "" && !tlsConfig.InsecureSkipVerify {
		tlsConfig.ServerName = config.Connection.Host
	}
	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// --------------------------------------------------------------------------
// Client Factory Methods
// --------------------------------------------------------------------------

// NewClientConnector creates a new TCP connector
func NewClientConnector() transport.IClientConnector {
	return &clientConnector{}
}

// NewTCPClientPool creates a new connection pool using TCP
func NewTCPClientPool(config common.ClientConfig, s serializer.IRPCSerializer) *base.Pool {
	return base.NewPool(NewClientConnector(), config, s)
}
