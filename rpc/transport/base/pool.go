package base

import (
	"context"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"github.com/ValentinKolb/arangovst/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
	"sync"
	"sync/atomic"
)

var poolLogger = logger.GetLogger(common.LoggerPool)

// Pool is a bounded set of channels to one endpoint. Channels are connected on
// demand, a failed channel is excluded from selection until it reconnected.
// The pool never retries a request.
type Pool struct {
	connector  transport.IClientConnector
	config     common.ClientConfig
	serializer serializer.IRPCSerializer

	channelsMu    sync.Mutex
	channels      []*Channel
	nextConnIndex atomic.Uint64 // Counter for Round Robin
	nextMessageID atomic.Uint64 // Counter for unique message ids
	closed        atomic.Bool
}

// -----------------------------------------------------------
// Pool Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewPool creates an empty pool. No connection is opened before the first Acquire.
func NewPool(connector transport.IClientConnector, config common.ClientConfig, s serializer.IRPCSerializer) *Pool {
	config = config.Normalize()
	return &Pool{
		connector:  connector,
		config:     config,
		serializer: s,
		channels:   make([]*Channel, 0, config.MaxConnections),
	}
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// Acquire returns a connected channel. It prefers an idle connected channel,
// grows the pool if all channels are busy and reconnects disconnected slots.
func (p *Pool) Acquire(ctx context.Context) (*Channel, error) {
	p.channelsMu.Lock()
	if p.closed.Load() {
		p.channelsMu.Unlock()
		return nil, common.ErrClosed
	}
	selected := p.selectConnected()
	var target *Channel
	if selected == nil || selected.Load() > 0 {
		target = p.reserveSlot(selected == nil)
	}
	p.channelsMu.Unlock()

	if target == nil {
		if selected != nil {
			return selected, nil
		}
		return nil, &common.CommunicationError{Endpoint: p.config.Connection.Endpoint(), Err: errNotConnected}
	}

	if err := target.Connect(ctx); err != nil {
		if selected != nil {
			// Growing failed, fall back to a busy but healthy channel
			poolLogger.Debugf("Failed to grow pool, using %s: %v", selected, err)
			return selected, nil
		}
		return nil, err
	}
	return target, nil
}

// DisconnectAll closes every channel in parallel. Pending calls complete with
// ErrClosed, later calls to Acquire fail with ErrClosed.
func (p *Pool) DisconnectAll() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.channelsMu.Lock()
	channels := p.channels
	p.channels = nil
	p.channelsMu.Unlock()

	var g errgroup.Group
	for _, ch := range channels {
		g.Go(ch.Close)
	}
	err := g.Wait()

	poolLogger.Infof("Disconnected %d channels to %s", len(channels), p.config.Connection.Endpoint())
	return err
}

// Size returns the number of channels in the pool (connected or not)
func (p *Pool) Size() int {
	p.channelsMu.Lock()
	defer p.channelsMu.Unlock()
	return len(p.channels)
}

// Channels returns a snapshot of the channels in the pool
func (p *Pool) Channels() []*Channel {
	p.channelsMu.Lock()
	defer p.channelsMu.Unlock()
	return append([]*Channel(nil), p.channels...)
}

// Config returns the normalized configuration of the pool
func (p *Pool) Config() common.ClientConfig {
	return p.config
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// selectConnected picks a connected channel according to the selection
// policy, the caller must hold channelsMu
func (p *Pool) selectConnected() *Channel {
	connected := make([]*Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		if ch.State() == transport.StateConnected {
			connected = append(connected, ch)
		}
	}
	if len(connected) == 0 {
		return nil
	}
	// optimize for single connection
	if len(connected) == 1 {
		return connected[0]
	}

	switch p.config.Selection {
	case common.SelectRoundRobin:
		index := p.nextConnIndex.Add(1) % uint64(len(connected))
		return connected[index]
	default:
		best := connected[0]
		for _, ch := range connected[1:] {
			if ch.Load() < best.Load() {
				best = ch
			}
		}
		return best
	}
}

// reserveSlot returns a channel that should be connected: a disconnected slot,
// a new channel if the pool has not reached its maximum, or (if allowed) a
// channel already connecting. The caller must hold channelsMu.
func (p *Pool) reserveSlot(allowConnecting bool) *Channel {
	var connecting *Channel
	for _, ch := range p.channels {
		switch ch.State() {
		case transport.StateDisconnected:
			return ch
		case transport.StateConnecting:
			if connecting == nil {
				connecting = ch
			}
		}
	}

	if len(p.channels) < p.config.MaxConnections {
		ch := NewChannel(len(p.channels), p.connector, p.config, p.serializer, p.messageID)
		p.channels = append(p.channels, ch)
		poolLogger.Debugf("Growing pool to %d channels (max %d)", len(p.channels), p.config.MaxConnections)
		return ch
	}
	if allowConnecting {
		return connecting
	}
	return nil
}

// messageID returns the next pool-wide unique message id (starting at 1)
func (p *Pool) messageID() uint64 {
	return p.nextMessageID.Add(1)
}
