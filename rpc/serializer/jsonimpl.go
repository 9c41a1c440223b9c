package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NewJSONSerializer creates a new serializer using json encoding. The server
// only accepts VelocyPack envelopes, this serializer is meant for debugging and
// for endpoints served by the server package.
func NewJSONSerializer() IRPCSerializer {
	return &envelopeSerializer{codec: jsonCodec{}}
}

// jsonCodec implements headerCodec using json encoding
type jsonCodec struct{}

func (jsonCodec) name() string {
	return "json"
}

func (jsonCodec) encodeHeader(hdr []interface{}) ([]byte, error) {
	return json.Marshal(hdr)
}

func (jsonCodec) splitHeader(b []byte) ([]interface{}, []byte, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("data too short for envelope")
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var hdr []interface{}
	if err := dec.Decode(&hdr); err != nil {
		return nil, nil, fmt.Errorf("invalid envelope: %w", err)
	}

	return hdr, bodyOf(b[dec.InputOffset():]), nil
}

func (jsonCodec) marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) unmarshal(b []byte, v interface{}) error {
	return json.Unmarshal(b, v)
}
