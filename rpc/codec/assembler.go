package codec

import (
	"github.com/ValentinKolb/arangovst/rpc/common"
)

// partial holds the frames of one message received so far
type partial struct {
	frames   []Frame
	seen     map[uint32]struct{}
	count    uint32 // 0 until the first chunk arrived
	received uint64
}

// Assembler accumulates frames per message id. Frames of different messages
// may arrive interleaved. An Assembler is owned by a single reader goroutine
// and is not safe for concurrent use.
type Assembler struct {
	partials map[uint64]*partial
}

// NewAssembler creates an empty assembler
func NewAssembler() *Assembler {
	return &Assembler{partials: make(map[uint64]*partial)}
}

// Add adds a frame. Once all frames of its message are present the joined
// message is returned with complete set to true and the state is dropped.
// Any protocol violation returns a *common.MalformedFrameError.
func (a *Assembler) Add(f Frame) (data []byte, complete bool, err error) {
	// Optimize for single chunk messages
	if f.IsFirst() && f.Count == 1 {
		if _, ok := a.partials[f.MessageID]; ok {
			delete(a.partials, f.MessageID)
			return nil, false, common.NewMalformedFrameError(f.MessageID, "duplicate first chunk")
		}
		data, err := Join([]Frame{f})
		return data, err == nil, err
	}

	p, ok := a.partials[f.MessageID]
	if !ok {
		p = &partial{seen: make(map[uint32]struct{})}
		a.partials[f.MessageID] = p
	}

	if _, dup := p.seen[f.Index]; dup {
		delete(a.partials, f.MessageID)
		return nil, false, common.NewMalformedFrameError(f.MessageID, "duplicate chunk index %d", f.Index)
	}
	p.seen[f.Index] = struct{}{}
	p.frames = append(p.frames, f)
	p.received += uint64(len(f.Payload))
	if f.IsFirst() {
		p.count = f.Count
	}

	if p.received > f.MessageLength {
		delete(a.partials, f.MessageID)
		return nil, false, common.NewMalformedFrameError(f.MessageID, "received %d bytes for a message of %d bytes", p.received, f.MessageLength)
	}
	if p.count > 0 && uint32(len(p.frames)) > p.count {
		delete(a.partials, f.MessageID)
		return nil, false, common.NewMalformedFrameError(f.MessageID, "received more than %d chunks", p.count)
	}
	if p.count == 0 || uint32(len(p.frames)) < p.count {
		return nil, false, nil
	}

	delete(a.partials, f.MessageID)
	data, err = Join(p.frames)
	return data, err == nil, err
}

// Pending returns the number of partially received messages
func (a *Assembler) Pending() int {
	return len(a.partials)
}
