// Package serializer provides message serialization for the VST client.
// It defines a common interface and multiple implementations for encoding
// the envelope of requests, responses and authentication messages, and for
// converting user values to and from message bodies.
//
// The package focuses on:
//   - Providing a consistent interface for different envelope encodings
//   - Producing envelopes that match the server byte for byte (VelocyPack)
//   - Keeping the body opaque: a message is the encoded header followed by the body
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//     It embeds IValueSerializer, the pluggable value (de)serialization capability.
//
//   - envelopeSerializer: Shared implementation of the header layouts
//     (request, response, authentication) on top of a small headerCodec.
//
//   - VelocyPack: The format spoken by the server, backed by go-velocypack.
//     Recommended (and required) for real deployments.
//
//   - JSON: Human-readable envelopes for debugging and for local endpoints
//     served by the server package. The server does not accept it.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	s := serializer.NewVelocyPackSerializer()
//	data, err := s.SerializeRequest(common.NewRequest("_system", common.MethodGet, "/_api/version"))
//	// ... send data ...
//	var resp common.Response
//	err = s.DeserializeResponse(receivedData, &resp)
package serializer
