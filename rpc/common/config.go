package common

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8529
	DefaultUser           = "root"
	DefaultDatabase       = "_system"
	DefaultChunkSize      = 30000
	DefaultMaxConnections = 1
	DefaultMaxMessageSize = 256 * 1024 * 1024 // 256 MB
)

// --------------------------------------------------------------------------
// Connection configuration struct
// --------------------------------------------------------------------------

// ConnectionConfig holds everything needed to open and authenticate one
// physical connection. It is supplied at pool construction and never mutated.
type ConnectionConfig struct {
	Host string
	Port int
	// Unix socket path, if set Host and Port are ignored
	SocketPath string
	// Timeout bounds how long a pending call waits for its reply (0 = no timeout)
	Timeout  time.Duration
	User     string
	Password string
	UseSSL   bool
	// TLSConfig is the injected SSL context, nil means tls.Config{ServerName: Host}
	TLSConfig *tls.Config
	// ChunkSize is the maximum payload size of a single chunk
	ChunkSize int
}

// Endpoint returns the address dialed by the connector
func (c ConnectionConfig) Endpoint() string {
	if c.SocketPath != "" {
		return c.SocketPath
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// --------------------------------------------------------------------------
// Socket configuration structs (applied by the connectors)
// --------------------------------------------------------------------------

type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// SelectionPolicy decides which connected channel serves the next request
type SelectionPolicy string

const (
	SelectRoundRobin  SelectionPolicy = "round-robin"
	SelectLeastLoaded SelectionPolicy = "least-loaded"
)

// ClientConfig is the full configuration of a client
type ClientConfig struct {
	Connection ConnectionConfig
	// Database used when a builder is not given one
	Database string
	// MaxConnections is the upper bound of channels opened by the pool
	MaxConnections int
	Selection      SelectionPolicy
	// Serializer is the name of the envelope serializer (velocypack, json)
	Serializer string
	// MaxMessageSize bounds the size of a single reassembled message
	MaxMessageSize uint64
	// DocumentCacheSize bounds the number of cached revisions (0 = unbounded)
	DocumentCacheSize int
	SocketConf
	TCPConf
}

// DefaultClientConfig returns the documented defaults
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Connection: ConnectionConfig{
			Host:      DefaultHost,
			Port:      DefaultPort,
			User:      DefaultUser,
			ChunkSize: DefaultChunkSize,
		},
		Database:       DefaultDatabase,
		MaxConnections: DefaultMaxConnections,
		Selection:      SelectLeastLoaded,
		Serializer:     "velocypack",
		MaxMessageSize: DefaultMaxMessageSize,
		TCPConf: TCPConf{
			TCPNoDelay:   true,
			TCPLingerSec: -1,
		},
	}
}

// Normalize fills zero values with their defaults
func (c ClientConfig) Normalize() ClientConfig {
	if c.Connection.Host == "" && c.Connection.SocketPath == "" {
		c.Connection.Host = DefaultHost
	}
	if c.Connection.Port == 0 {
		c.Connection.Port = DefaultPort
	}
	if c.Connection.ChunkSize <= 0 {
		c.Connection.ChunkSize = DefaultChunkSize
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.Selection == "" {
		c.Selection = SelectLeastLoaded
	}
	if c.Serializer == "" {
		c.Serializer = "velocypack"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	return c
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	timeout := "none"
	if c.Connection.Timeout > 0 {
		timeout = c.Connection.Timeout.String()
	}

	// Connection settings
	addSection("Connection")
	addField("Endpoint", c.Connection.Endpoint())
	addField("User", c.Connection.User)
	addField("Password", strings.Repeat("*", len(c.Connection.Password)))
	addField("Use SSL", strconv.FormatBool(c.Connection.UseSSL))
	addField("Timeout", timeout)
	addField("Chunk Size", fmt.Sprintf("%d bytes", c.Connection.ChunkSize))

	// Client settings
	addSection("Client")
	addField("Database", c.Database)
	addField("Max Connections", strconv.Itoa(c.MaxConnections))
	addField("Selection", string(c.Selection))
	addField("Serializer", c.Serializer)
	addField("Max Message Size", fmt.Sprintf("%d bytes", c.MaxMessageSize))
	addField("Document Cache Size", strconv.Itoa(c.DocumentCacheSize))

	// Socket settings
	addSection("Socket")
	addField("TCP No Delay", strconv.FormatBool(c.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.TCPKeepAliveSec))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.WriteBufferSize))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.ReadBufferSize))

	return sb.String()
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig configures the in-process VST endpoint
type ServerConfig struct {
	// Endpoint is host:port for tcp or the socket path for unix
	Endpoint string
	// Timeout bounds reads of a started message and writes of replies (0 = no timeout)
	Timeout time.Duration
	// User and Password are required from clients if User is set
	User     string
	Password string
	// TLSConfig enables TLS on accepted connections if set
	TLSConfig *tls.Config
	// ChunkSize is the maximum payload size of a reply chunk
	ChunkSize int
	// MaxWorkersPerConn limits the number of requests handled concurrently per connection
	MaxWorkersPerConn int
	// MaxMessageSize bounds the size of a single reassembled request
	MaxMessageSize uint64
	// Serializer is the name of the envelope serializer (velocypack, json)
	Serializer string
	SocketConf
	TCPConf
}

// DefaultServerConfig returns the defaults of the in-process endpoint
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Endpoint:          net.JoinHostPort(DefaultHost, strconv.Itoa(DefaultPort)),
		ChunkSize:         DefaultChunkSize,
		MaxWorkersPerConn: 64,
		MaxMessageSize:    DefaultMaxMessageSize,
		Serializer:        "velocypack",
		TCPConf: TCPConf{
			TCPNoDelay:   true,
			TCPLingerSec: -1,
		},
	}
}
