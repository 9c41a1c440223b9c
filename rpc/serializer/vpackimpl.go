package serializer

import (
	"fmt"
	"github.com/arangodb/go-velocypack"
)

// NewVelocyPackSerializer creates a new serializer using VelocyPack, the
// encoding spoken by the server
func NewVelocyPackSerializer() IRPCSerializer {
	return &envelopeSerializer{codec: vpackCodec{}}
}

// vpackCodec implements headerCodec using go-velocypack
type vpackCodec struct{}

func (vpackCodec) name() string {
	return "velocypack"
}

func (vpackCodec) encodeHeader(hdr []interface{}) ([]byte, error) {
	slice, err := velocypack.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return slice, nil
}

func (vpackCodec) splitHeader(b []byte) ([]interface{}, []byte, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("data too short for envelope")
	}

	// The header is the first velocypack value, the body follows directly
	slice := velocypack.Slice(b)
	size, err := slice.ByteSize()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if uint64(size) > uint64(len(b)) {
		return nil, nil, fmt.Errorf("data too short for envelope: need %d bytes, got %d", size, len(b))
	}

	var hdr []interface{}
	if err := velocypack.Unmarshal(slice[:size], &hdr); err != nil {
		return nil, nil, fmt.Errorf("invalid envelope: %w", err)
	}

	return hdr, bodyOf(b[size:]), nil
}

func (vpackCodec) marshal(v interface{}) ([]byte, error) {
	return velocypack.Marshal(v)
}

func (vpackCodec) unmarshal(b []byte, v interface{}) error {
	return velocypack.Unmarshal(velocypack.Slice(b), v)
}

// bodyOf copies the remaining bytes of a message, an empty body is nil
func bodyOf(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
