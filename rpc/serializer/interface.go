package serializer

import (
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/common"
)

// IValueSerializer converts arbitrary user values to and from request and
// response bodies
type IValueSerializer interface {
	// Marshal encodes a value into a body
	Marshal(v interface{}) ([]byte, error)
	// Unmarshal decodes a body into the value pointed to by v
	Unmarshal(b []byte, v interface{}) error
}

// IRPCSerializer is the interface for all VST envelope serializers.
// A serialized message is the envelope header followed by the raw body.
type IRPCSerializer interface {
	IValueSerializer

	// Name returns the name of the serializer (e.g. "velocypack")
	Name() string

	// SerializeRequest encodes a request envelope followed by its body
	SerializeRequest(req common.Request) ([]byte, error)
	// DeserializeRequest decodes a message produced by SerializeRequest
	DeserializeRequest(b []byte, req *common.Request) error

	// SerializeResponse encodes a response envelope followed by its body
	SerializeResponse(resp common.Response) ([]byte, error)
	// DeserializeResponse decodes a message produced by SerializeResponse
	DeserializeResponse(b []byte, resp *common.Response) error

	// SerializeAuthentication encodes the credential message
	SerializeAuthentication(auth common.Authentication) ([]byte, error)
	// DeserializeAuthentication decodes the credential message
	DeserializeAuthentication(b []byte, auth *common.Authentication) error

	// PeekType returns the message type of an encoded message without decoding it fully
	PeekType(b []byte) (common.MessageType, error)
}

// New returns the serializer registered under the given name
func New(name string) (IRPCSerializer, error) {
	switch name {
	case "velocypack", "vpack", "":
		return NewVelocyPackSerializer(), nil
	case "json":
		return NewJSONSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s (expected velocypack or json)", name)
	}
}
