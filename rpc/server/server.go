package server

import (
	"bufio"
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/codec"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"github.com/ValentinKolb/arangovst/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger(common.LoggerServer)

const (
	defaultBufferSize   = 64 * 1024 // 64 KB
	defaultMagicTimeout = 10 * time.Second
)

// VSTServer is a minimal VelocyStream endpoint. It performs the protocol
// handshake, checks credentials, reassembles chunked requests and dispatches
// them to a handler with a limited number of workers per connection.
type VSTServer struct {
	config     common.ServerConfig
	connector  transport.IServerConnector
	serializer serializer.IRPCSerializer
	handler    IRequestHandler

	listenerMu sync.Mutex
	listener   net.Listener
	conns      *xsync.MapOf[net.Conn, struct{}]
	closed     atomic.Bool
	wg         sync.WaitGroup
}

// NewVSTServer creates a new server
//
// Usage:
//
//	s, err := server.NewVSTServer(config, tcp.NewServerConnector(), server.NewMockDatabase(ser))
//	if err != nil {
//		panic(err)
//	}
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewVSTServer(config common.ServerConfig, connector transport.IServerConnector, handler IRequestHandler) (*VSTServer, error) {
	s, err := serializer.New(config.Serializer)
	if err != nil {
		return nil, err
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = common.DefaultChunkSize
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = common.DefaultMaxMessageSize
	}
	// minimum one worker per connection
	config.MaxWorkersPerConn = max(config.MaxWorkersPerConn, 1)

	return &VSTServer{
		config:     config,
		connector:  connector,
		serializer: s,
		handler:    handler,
		conns:      xsync.NewMapOf[net.Conn, struct{}](),
	}, nil
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// Listen creates the listener without accepting connections yet
func (s *VSTServer) Listen() error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener != nil {
		return nil
	}

	listener, err := s.connector.Listen(s.config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	s.listener = listener
	return nil
}

// Serve accepts connections until Close is called
func (s *VSTServer) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	Logger.Infof("Starting %s VST server on %s with %d workers per connection",
		s.connector.GetName(), s.Addr(), s.config.MaxWorkersPerConn)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		// Handle the connection in a goroutine
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// Start listens and serves in the background
func (s *VSTServer) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	go func() {
		if err := s.Serve(); err != nil {
			Logger.Errorf("Server stopped: %v", err)
		}
	}()
	return nil
}

// Addr returns the address the server listens on
func (s *VSTServer) Addr() string {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return s.config.Endpoint
	}
	return s.listener.Addr().String()
}

// CloseConnections drops all open client connections but keeps listening.
// It returns the number of closed connections.
func (s *VSTServer) CloseConnections() int {
	n := 0
	s.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.Close()
		n++
		return true
	})
	return n
}

// Close stops listening, drops all connections and waits for the handlers
func (s *VSTServer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	var err error
	s.listenerMu.Lock()
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.listenerMu.Unlock()

	s.CloseConnections()
	s.wg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection handles the handshake and all requests of one connection
func (s *VSTServer) handleConnection(conn net.Conn) {
	conn, err := s.connector.UpgradeConnection(conn, s.config)
	if err != nil {
		Logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	s.conns.Store(conn, struct{}{})
	defer func() {
		s.conns.Delete(conn)
		_ = conn.Close()
	}()
	if s.closed.Load() {
		return
	}

	// Handshake: the client starts with the protocol magic
	magicTimeout := s.config.Timeout
	if magicTimeout <= 0 {
		magicTimeout = defaultMagicTimeout
	}
	_ = conn.SetReadDeadline(time.Now().Add(magicTimeout))
	magic := make([]byte, len(codec.ProtocolMagic))
	if _, err := io.ReadFull(conn, magic); err != nil {
		Logger.Debugf("Failed to read protocol magic: %v", err)
		return
	}
	if !bytes.Equal(magic, codec.ProtocolMagic) {
		Logger.Warningf("Invalid protocol magic %q from %s", magic, conn.RemoteAddr())
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// Create a semaphore to limit concurrent workers for this connection
	workerSemaphore := make(chan struct{}, s.config.MaxWorkersPerConn)

	// Create a wait group to wait for all workers to finish
	var wg sync.WaitGroup

	// Create a mutex to protect writes to the connection
	var connMutex sync.Mutex

	reply := func(messageID uint64, resp common.Response) {
		frames, err := codec.EncodeResponse(s.serializer, messageID, resp, s.config.ChunkSize)
		if err != nil {
			Logger.Errorf("Failed to encode response for message %d: %v", messageID, err)
			return
		}

		connMutex.Lock()
		defer connMutex.Unlock()
		if s.config.Timeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.config.Timeout))
		}
		if err := codec.WriteFrames(conn, frames); err != nil {
			Logger.Debugf("Failed to write response for message %d: %v", messageID, err)
		}
	}

	authenticated := s.config.User == ""
	reader := bufio.NewReaderSize(conn, defaultBufferSize)
	assembler := codec.NewAssembler()

	for {
		frame, err := codec.ReadFrame(reader, s.config.MaxMessageSize)
		if err == io.EOF || errors.Is(err, net.ErrClosed) {
			Logger.Debugf("Connection closed by client")
			break
		}
		if err != nil {
			Logger.Errorf("Error reading frame: %v", err)
			break
		}

		data, complete, err := assembler.Add(frame)
		if err != nil {
			Logger.Errorf("Error assembling message: %v", err)
			break
		}
		if !complete {
			continue
		}

		msgType, err := s.serializer.PeekType(data)
		if err != nil {
			reply(frame.MessageID, s.errorResponse(400, 600, fmt.Sprintf("invalid envelope: %v", err)))
			continue
		}

		switch msgType {
		case common.MsgTAuthentication:
			var auth common.Authentication
			if err := s.serializer.DeserializeAuthentication(data, &auth); err != nil {
				reply(frame.MessageID, s.errorResponse(400, 600, err.Error()))
				continue
			}
			authenticated = s.checkCredentials(auth)
			if !authenticated {
				Logger.Warningf("Authentication of user %q failed", auth.User)
				reply(frame.MessageID, s.errorResponse(401, 11, "not authorized to execute this request"))
				continue
			}
			reply(frame.MessageID, common.Response{Version: common.EnvelopeVersion, Type: common.MsgTResponse, StatusCode: 200})

		case common.MsgTRequest:
			if !authenticated {
				reply(frame.MessageID, s.errorResponse(401, 11, "not authorized to execute this request"))
				continue
			}
			var req common.Request
			if err := s.serializer.DeserializeRequest(data, &req); err != nil {
				reply(frame.MessageID, s.errorResponse(400, 600, err.Error()))
				continue
			}

			// Acquire a slot in the semaphore (blocks if MaxWorkersPerConn is reached)
			workerSemaphore <- struct{}{}
			wg.Add(1)

			// Process in a goroutine
			go func(messageID uint64, req common.Request) {
				defer func() {
					<-workerSemaphore // Release semaphore slot
					wg.Done()         // Mark worker as done
				}()

				start := time.Now()
				resp := s.handler.Handle(req)
				Logger.Debugf("Processed %s (message %d) with status %d in %s", req, messageID, resp.StatusCode, time.Since(start))
				resp.Version = common.EnvelopeVersion
				resp.Type = common.MsgTResponse
				reply(messageID, resp)
			}(frame.MessageID, req)

		default:
			reply(frame.MessageID, s.errorResponse(400, 600, fmt.Sprintf("unexpected message type %s", msgType)))
		}
	}

	// Wait for all workers to finish before closing the connection
	wg.Wait()
}

// checkCredentials compares the credentials in constant time
func (s *VSTServer) checkCredentials(auth common.Authentication) bool {
	userOK := subtle.ConstantTimeCompare([]byte(auth.User), []byte(s.config.User))
	passOK := subtle.ConstantTimeCompare([]byte(auth.Password), []byte(s.config.Password))
	return userOK&passOK == 1
}

func (s *VSTServer) errorResponse(code, errorNum int, message string) common.Response {
	return ErrorResponse(s.serializer, code, errorNum, message)
}

// ErrorResponse builds a response carrying the server error object
// {error, errorNum, errorMessage, code}
func ErrorResponse(s serializer.IValueSerializer, code, errorNum int, message string) common.Response {
	body, err := s.Marshal(map[string]interface{}{
		"error":        true,
		"errorNum":     errorNum,
		"errorMessage": message,
		"code":         code,
	})
	if err != nil {
		body = nil
	}
	return common.Response{
		Version:    common.EnvelopeVersion,
		Type:       common.MsgTResponse,
		StatusCode: code,
		Body:       body,
	}
}
