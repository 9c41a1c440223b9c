package codec

import (
	"encoding/binary"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"io"
	"net"
)

// ProtocolMagic is written by the client once, directly after connecting
var ProtocolMagic = []byte("VST/1.1\r\n\r\n")

// HeaderSize is the size of the chunk header in bytes
const HeaderSize = 24

// Frame is a single chunk of a message. Count is only transmitted on the first
// chunk (Index 0), frames read from the wire carry Count 0 otherwise.
type Frame struct {
	MessageID     uint64
	Index         uint32
	Count         uint32
	MessageLength uint64
	Payload       []byte
}

// IsFirst reports whether the frame is the first chunk of its message
func (f Frame) IsFirst() bool {
	return f.Index == 0
}

// chunkX encodes index and count the way the protocol expects it:
// (count << 1) | 1 for the first chunk, index << 1 for all others
func (f Frame) chunkX() uint32 {
	if f.IsFirst() {
		return f.Count<<1 | 1
	}
	return f.Index << 1
}

// --------------------------------------------------------------------------
// Frame I/O
// --------------------------------------------------------------------------

// putHeader writes the chunk header with the format:
// - 4 bytes: chunk length incl. header (uint32, little endian)
// - 4 bytes: chunkX (uint32, little endian)
// - 8 bytes: message id (uint64, little endian)
// - 8 bytes: total message length (uint64, little endian)
func putHeader(buf []byte, f Frame) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(HeaderSize+len(f.Payload)))
	binary.LittleEndian.PutUint32(buf[4:8], f.chunkX())
	binary.LittleEndian.PutUint64(buf[8:16], f.MessageID)
	binary.LittleEndian.PutUint64(buf[16:24], f.MessageLength)
}

// WriteFrames writes all frames of one message with a single vectored write.
// The caller must hold the write lock of the connection.
func WriteFrames(w io.Writer, frames []Frame) error {
	headers := make([]byte, HeaderSize*len(frames))
	b := make(net.Buffers, 0, 2*len(frames))
	for i, f := range frames {
		header := headers[i*HeaderSize : (i+1)*HeaderSize]
		putHeader(header, f)
		b = append(b, header)
		if len(f.Payload) > 0 {
			b = append(b, f.Payload)
		}
	}
	_, err := b.WriteTo(w)
	return err
}

// ReadFrame reads exactly one chunk from r. I/O errors (including io.EOF) are
// returned unchanged, protocol violations as *common.MalformedFrameError.
// maxMessageSize bounds the accepted message length (0 = unbounded).
func ReadFrame(r io.Reader, maxMessageSize uint64) (Frame, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}

	chunkLength := binary.LittleEndian.Uint32(header[0:4])
	chunkX := binary.LittleEndian.Uint32(header[4:8])
	f := Frame{
		MessageID:     binary.LittleEndian.Uint64(header[8:16]),
		MessageLength: binary.LittleEndian.Uint64(header[16:24]),
	}

	if chunkLength < HeaderSize {
		return Frame{}, common.NewMalformedFrameError(f.MessageID, "chunk length %d is smaller than the header", chunkLength)
	}
	if maxMessageSize > 0 && f.MessageLength > maxMessageSize {
		return Frame{}, common.NewMalformedFrameError(f.MessageID, "message length %d exceeds maximum of %d", f.MessageLength, maxMessageSize)
	}
	payloadLength := uint64(chunkLength - HeaderSize)
	if payloadLength > f.MessageLength {
		return Frame{}, common.NewMalformedFrameError(f.MessageID, "chunk payload %d exceeds message length %d", payloadLength, f.MessageLength)
	}

	if chunkX&1 == 1 {
		f.Index = 0
		f.Count = chunkX >> 1
		if f.Count == 0 {
			return Frame{}, common.NewMalformedFrameError(f.MessageID, "first chunk announces zero chunks")
		}
	} else {
		f.Index = chunkX >> 1
		if f.Index == 0 {
			return Frame{}, common.NewMalformedFrameError(f.MessageID, "follow-up chunk with index 0")
		}
	}

	f.Payload = make([]byte, payloadLength)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return f, nil
}
