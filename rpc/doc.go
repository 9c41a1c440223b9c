// Package rpc implements the VelocyStream (VST 1.1) request pipeline used to
// talk to an ArangoDB style database server over persistent, multiplexed
// connections.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the pipeline, including the
//     Request and Response envelopes, the error taxonomy, configuration and logging.
//
//   - codec: The VST wire format. Splits messages into chunks, writes and reads
//     24 byte chunk headers and reassembles interleaved chunks per message id.
//
//   - serializer: Encoding of envelopes and bodies (VelocyPack or JSON).
//
//   - transport: Network abstractions (TCP with optional TLS, Unix sockets) and
//     the base package with the multiplexed Channel and the Pool of channels.
//
//   - client: The Executor that turns requests into futures, the request
//     builders for collections and documents and the Client tying it together.
//
//   - server: A minimal VST endpoint with an in-memory mock database, used by
//     tests and the `avst serve` command.
package rpc
