package base

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/codec"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"github.com/ValentinKolb/arangovst/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger(common.LoggerChannel)

const (
	defaultReadBufferSize = 64 * 1024 // 64 KB
	defaultConnectTimeout = 30 * time.Second
)

var errNotConnected = errors.New("channel is not connected")

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// result is the outcome delivered to a pending call
type result struct {
	resp common.Response
	err  error
}

// pendingCall is a registered request waiting for its reply
type pendingCall struct {
	resultCh chan result // buffered, receives exactly one result
	conn     net.Conn    // connection the request was written on
	timerMu  sync.Mutex
	timer    *time.Timer
}

func (p *pendingCall) stopTimer() {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
}

// connectAttempt is one connect shared by all callers of Connect
type connectAttempt struct {
	done chan struct{} // closed when the attempt finished
	err  error
}

// Pending is the handle of a sent request
type Pending struct {
	// MessageID is the correlation id of the request on the wire
	MessageID uint64
	resultCh  <-chan result
	channel   *Channel
}

// Wait blocks until the reply arrived, the call failed or ctx is done.
// If ctx is done first the call is abandoned and a late reply is discarded.
func (p *Pending) Wait(ctx context.Context) (common.Response, error) {
	select {
	case r := <-p.resultCh:
		return r.resp, r.err
	case <-ctx.Done():
		p.Abandon()
		return common.Response{}, ctx.Err()
	}
}

// Abandon removes the registration of the call. The request itself is not
// retracted, the server may still process it.
func (p *Pending) Abandon() {
	if call, ok := p.channel.pending.LoadAndDelete(p.MessageID); ok {
		call.stopTimer()
	}
}

// -----------------------------------------------------------
// Channel
// -----------------------------------------------------------

// Channel owns one physical connection. It writes the frames of a message
// under a write lock, reads frames in a background loop, demultiplexes them by
// message id and completes the matching pending call.
type Channel struct {
	slot       int
	connector  transport.IClientConnector
	config     common.ClientConfig
	serializer serializer.IRPCSerializer
	nextID     func() uint64

	mu         sync.Mutex // Protects conn, state transitions and the connect attempt
	state      atomic.Int32
	conn       net.Conn
	connecting *connectAttempt

	writeMu sync.Mutex // Keeps the frames of one message contiguous
	pending *xsync.MapOf[uint64, *pendingCall]
}

// NewChannel creates a disconnected channel. nextID must return message ids
// that are unique for the lifetime of the channel.
func NewChannel(slot int, connector transport.IClientConnector, config common.ClientConfig, s serializer.IRPCSerializer, nextID func() uint64) *Channel {
	c := &Channel{
		slot:       slot,
		connector:  connector,
		config:     config,
		serializer: s,
		nextID:     nextID,
		pending:    xsync.NewMapOf[uint64, *pendingCall](),
	}
	c.state.Store(int32(transport.StateDisconnected))
	return c
}

// State returns the current lifecycle state
func (c *Channel) State() transport.ChannelState {
	return transport.ChannelState(c.state.Load())
}

// Load returns the number of calls currently pending on the channel
func (c *Channel) Load() int {
	return c.pending.Size()
}

// Endpoint returns the address the channel connects to
func (c *Channel) Endpoint() string {
	return c.config.Connection.Endpoint()
}

// String returns a short description used in logs
func (c *Channel) String() string {
	return fmt.Sprintf("%s channel %d to %s (%s)", c.connector.GetName(), c.slot, c.Endpoint(), c.State())
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Connect moves the channel from Disconnected to Connected. Concurrent callers
// share one attempt. A connected channel returns immediately. A done ctx only
// stops the wait of its caller, the attempt itself is bounded by the
// connection timeout (defaultConnectTimeout if none is configured).
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.State() {
	case transport.StateConnected:
		c.mu.Unlock()
		return nil
	case transport.StateClosed:
		c.mu.Unlock()
		return common.ErrClosed
	case transport.StateDisconnected:
		c.state.Store(int32(transport.StateConnecting))
		c.connecting = &connectAttempt{done: make(chan struct{})}
		go c.runAttempt(context.WithoutCancel(ctx), c.connecting)
	}
	attempt := c.connecting
	c.mu.Unlock()

	select {
	case <-attempt.done:
		return attempt.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runAttempt dials and publishes the outcome of the attempt
func (c *Channel) runAttempt(ctx context.Context, attempt *connectAttempt) {
	timeout := c.config.Connection.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := c.dial(ctx)

	c.mu.Lock()
	switch {
	case err != nil:
	case c.State() == transport.StateClosed:
		err = common.ErrClosed
	case c.conn == nil:
		// The read loop failed the connection before the attempt finished
		err = &common.CommunicationError{Endpoint: c.Endpoint(), Err: errNotConnected}
	}
	if err != nil {
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		if c.State() != transport.StateClosed {
			c.state.Store(int32(transport.StateDisconnected))
		}
	} else {
		c.state.Store(int32(transport.StateConnected))
	}
	attempt.err = err
	close(attempt.done)
	c.mu.Unlock()

	if err != nil {
		Logger.Warningf("Failed to connect %s: %v", c, err)
		return
	}
	Logger.Infof("Connected %s", c)
}

// dial opens the connection, writes the protocol magic, starts the read loop
// and authenticates if a user is configured
func (c *Channel) dial(ctx context.Context) error {
	endpoint := c.Endpoint()
	commErr := func(err error) error {
		return &common.CommunicationError{Endpoint: endpoint, Err: err}
	}

	conn, err := c.connector.Connect(ctx, endpoint)
	if err != nil {
		return commErr(fmt.Errorf("failed to connect: %w", err))
	}

	// Upgrade the connection with protocol-specific settings (socket options, tls)
	upgraded, err := c.connector.UpgradeConnection(ctx, conn, c.config)
	if err != nil {
		_ = conn.Close()
		return commErr(fmt.Errorf("failed to upgrade connection: %w", err))
	}
	conn = upgraded

	c.mu.Lock()
	if c.State() == transport.StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return common.ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.writeMu.Lock()
	c.setWriteDeadline(conn)
	_, err = conn.Write(codec.ProtocolMagic)
	c.writeMu.Unlock()
	if err != nil {
		return commErr(fmt.Errorf("failed to write protocol magic: %w", err))
	}

	go c.readLoop(conn)

	if c.config.Connection.User == "" {
		return nil
	}

	// The credential message is awaited like any other call
	id := c.nextID()
	frames, err := codec.EncodeAuthentication(c.serializer, id,
		common.NewPlainAuthentication(c.config.Connection.User, c.config.Connection.Password), c.config.Connection.ChunkSize)
	if err != nil {
		return commErr(fmt.Errorf("failed to encode authentication: %w", err))
	}
	p := c.send(conn, id, frames)
	resp, err := p.Wait(ctx)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return commErr(fmt.Errorf("authentication failed: %w",
			&common.RequestFailedError{StatusCode: resp.StatusCode, Body: resp.Body}))
	}
	return nil
}

// Close closes the channel permanently. All pending calls complete with ErrClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.State() == transport.StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state.Store(int32(transport.StateClosed))
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.failAll(nil, common.ErrClosed)
	Logger.Debugf("Closed %s", c)
	return err
}

// fail tears down conn after an I/O or protocol error. It is a no-op if conn
// is no longer the current connection of the channel.
func (c *Channel) fail(conn net.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn || conn == nil {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	// A failing connect attempt resolves its own state
	if c.State() == transport.StateConnected {
		c.state.Store(int32(transport.StateDisconnected))
	}
	c.mu.Unlock()

	_ = conn.Close()

	// Close the connection first: a call registered after the fan-out will
	// fail on its own write. Calls on a newer connection are not touched.
	err := &common.CommunicationError{Endpoint: c.Endpoint(), Err: cause}
	Logger.Warningf("Connection of %s failed: %v", c, cause)
	c.failAll(conn, err)
}

// --------------------------------------------------------------------------
// Sending
// --------------------------------------------------------------------------

// Send encodes the request, writes its frames and returns the pending handle.
// Send does not wait for the reply.
func (c *Channel) Send(req common.Request) (*Pending, error) {
	if c.State() == transport.StateClosed {
		return nil, common.ErrClosed
	}
	conn := c.currentConn()
	if conn == nil {
		return nil, &common.CommunicationError{Endpoint: c.Endpoint(), Err: errNotConnected}
	}

	id := c.nextID()
	frames, err := codec.EncodeRequest(c.serializer, id, req, c.config.Connection.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request %s: %w", req, err)
	}

	return c.send(conn, id, frames), nil
}

// send registers the call and writes the frames. A write error is fatal to the
// connection and is delivered through the returned handle.
func (c *Channel) send(conn net.Conn, id uint64, frames []codec.Frame) *Pending {
	p := c.register(id, conn)

	c.writeMu.Lock()
	c.setWriteDeadline(conn)
	err := codec.WriteFrames(conn, frames)
	c.writeMu.Unlock()

	if err != nil {
		c.fail(conn, err)
		// The connection may already have been replaced, make sure this call completes
		c.complete(id, result{err: &common.CommunicationError{Endpoint: c.Endpoint(), Err: err}})
	}
	return p
}

// register adds a pending call on conn and arms its timeout
func (c *Channel) register(id uint64, conn net.Conn) *Pending {
	call := &pendingCall{resultCh: make(chan result, 1), conn: conn}
	c.pending.Store(id, call)

	if timeout := c.config.Connection.Timeout; timeout > 0 {
		call.timerMu.Lock()
		call.timer = time.AfterFunc(timeout, func() {
			if c.complete(id, result{err: &common.TimeoutError{MessageID: id, After: timeout}}) {
				Logger.Debugf("Request %d on %s timed out after %s", id, c, timeout)
			}
		})
		call.timerMu.Unlock()
	}

	return &Pending{MessageID: id, resultCh: call.resultCh, channel: c}
}

// complete delivers a result to a pending call exactly once. It returns false
// if the call is unknown (already completed, timed out or abandoned).
func (c *Channel) complete(id uint64, r result) bool {
	call, ok := c.pending.LoadAndDelete(id)
	if !ok {
		return false
	}
	call.stopTimer()
	call.resultCh <- r
	return true
}

// failAll completes the pending calls written on conn with err. A nil conn
// matches every call.
func (c *Channel) failAll(conn net.Conn, err error) {
	c.pending.Range(func(id uint64, call *pendingCall) bool {
		if conn == nil || call.conn == conn {
			c.complete(id, result{err: err})
		}
		return true
	})
}

// --------------------------------------------------------------------------
// Reading
// --------------------------------------------------------------------------

// readLoop reads frames until conn fails and distributes complete messages to
// the waiting calls. It is the only goroutine completing calls with replies.
func (c *Channel) readLoop(conn net.Conn) {
	bufSize := c.config.ReadBufferSize
	if bufSize <= 0 {
		bufSize = defaultReadBufferSize
	}
	reader := bufio.NewReaderSize(conn, bufSize)
	assembler := codec.NewAssembler()

	for {
		frame, err := codec.ReadFrame(reader, c.config.MaxMessageSize)
		if err != nil {
			c.fail(conn, err)
			return
		}

		data, complete, err := assembler.Add(frame)
		if err != nil {
			c.fail(conn, err)
			return
		}
		if !complete {
			continue
		}

		resp, err := codec.UnmarshalResponse(c.serializer, frame.MessageID, data)
		if err != nil {
			c.fail(conn, err)
			return
		}

		if !c.complete(frame.MessageID, result{resp: resp}) {
			Logger.Debugf("Discarding reply for unknown message %d on %s", frame.MessageID, c)
		}
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// currentConn returns the connection if the channel is connected
func (c *Channel) currentConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != transport.StateConnected {
		return nil
	}
	return c.conn
}

func (c *Channel) setWriteDeadline(conn net.Conn) {
	if timeout := c.config.Connection.Timeout; timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			Logger.Debugf("Failed to set write deadline on %s: %v", c, err)
		}
	}
}
