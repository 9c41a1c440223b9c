package unix

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/transport"
	"io/fs"
	"net"
	"os"
)

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	if err := removeStaleSocket(config.Endpoint); err != nil {
		return nil, err
	}

	listener, err := net.Listen("unix", config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %v", err)
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, _ common.ServerConfig) (net.Conn, error) {
	return conn, nil
}

// --------------------------------------------------------------------------
// Server Factory Method
// --------------------------------------------------------------------------

// NewServerConnector creates a new Unix socket server connector
func NewServerConnector() transport.IServerConnector {
	return &serverConnector{}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// removeStaleSocket removes a socket file left behind by a previous server.
// Any other file at the path is an error and is never removed.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check socket path: %v", err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("refusing to replace %s: not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove existing socket: %v", err)
	}
	return nil
}
