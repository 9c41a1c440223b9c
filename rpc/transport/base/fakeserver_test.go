package base

import (
	"bufio"
	"context"
	"github.com/ValentinKolb/arangovst/rpc/codec"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testConnector implements transport.IClientConnector for plain TCP. A delay
// holds every dial back unless ctx is done first.
type testConnector struct {
	dials atomic.Int64
	delay time.Duration
}

func (c *testConnector) GetName() string {
	return "test"
}

func (c *testConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	c.dials.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", endpoint)
}

func (c *testConnector) UpgradeConnection(_ context.Context, conn net.Conn, _ common.ClientConfig) (net.Conn, error) {
	return conn, nil
}

// fakeConn is the server side of one connection
type fakeConn struct {
	conn    net.Conn
	ser     serializer.IRPCSerializer
	writeMu sync.Mutex
}

// reply writes a response split into chunks of chunkSize
func (c *fakeConn) reply(id uint64, resp common.Response, chunkSize int) {
	resp.Version = common.EnvelopeVersion
	resp.Type = common.MsgTResponse
	frames, err := codec.EncodeResponse(c.ser, id, resp, chunkSize)
	if err != nil {
		panic(err)
	}
	c.writeFrames(frames)
}

func (c *fakeConn) writeFrames(frames []codec.Frame) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = codec.WriteFrames(c.conn, frames)
}

// fakeServer is a scripted VST endpoint. onRequest is called from the reader
// goroutine of the connection and decides if and when to reply.
type fakeServer struct {
	ln         net.Listener
	ser        serializer.IRPCSerializer
	authStatus int
	onRequest  func(c *fakeConn, id uint64, req common.Request)
	authCount  atomic.Int64

	connsMu sync.Mutex
	conns   []*fakeConn
}

// echoPath replies with the request path as body
func echoPath(c *fakeConn, id uint64, req common.Request) {
	c.reply(id, common.Response{StatusCode: 200, Body: []byte(req.Path)}, 0)
}

func newFakeServer(t *testing.T, onRequest func(c *fakeConn, id uint64, req common.Request)) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	s := &fakeServer{
		ln:         ln,
		ser:        serializer.NewVelocyPackSerializer(),
		authStatus: 200,
		onRequest:  onRequest,
	}
	go s.accept()
	t.Cleanup(func() {
		_ = ln.Close()
		s.dropConnections()
	})
	return s
}

func (s *fakeServer) addr() string {
	return s.ln.Addr().String()
}

// host and port of the listener for a ConnectionConfig
func (s *fakeServer) config() common.ClientConfig {
	host, port, _ := net.SplitHostPort(s.addr())
	config := common.DefaultClientConfig()
	config.Connection.Host = host
	config.Connection.Port, _ = strconv.Atoi(port)
	config.Connection.User = ""
	return config
}

func (s *fakeServer) connections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// dropConnections closes all accepted connections
func (s *fakeServer) dropConnections() {
	s.connsMu.Lock()
	conns := s.conns
	s.conns = nil
	s.connsMu.Unlock()
	for _, c := range conns {
		_ = c.conn.Close()
	}
}

func (s *fakeServer) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		c := &fakeConn{conn: conn, ser: s.ser}
		s.connsMu.Lock()
		s.conns = append(s.conns, c)
		s.connsMu.Unlock()
		go s.serve(c)
	}
}

func (s *fakeServer) serve(c *fakeConn) {
	defer c.conn.Close()
	reader := bufio.NewReader(c.conn)

	magic := make([]byte, len(codec.ProtocolMagic))
	if _, err := io.ReadFull(reader, magic); err != nil {
		return
	}

	assembler := codec.NewAssembler()
	for {
		frame, err := codec.ReadFrame(reader, 0)
		if err != nil {
			return
		}
		data, complete, err := assembler.Add(frame)
		if err != nil {
			return
		}
		if !complete {
			continue
		}

		msgType, err := s.ser.PeekType(data)
		if err != nil {
			return
		}
		if msgType == common.MsgTAuthentication {
			s.authCount.Add(1)
			c.reply(frame.MessageID, common.Response{StatusCode: s.authStatus}, 0)
			continue
		}

		var req common.Request
		if err := s.ser.DeserializeRequest(data, &req); err != nil {
			return
		}
		s.onRequest(c, frame.MessageID, req)
	}
}

// counter returns a message id generator starting at 1
func counter() func() uint64 {
	var n atomic.Uint64
	return func() uint64 { return n.Add(1) }
}
