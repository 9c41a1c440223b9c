// Package base provides the connection layer of the VST client independent of
// the specific network protocol (TCP, Unix sockets). It is extended with
// protocol-specific connectors from the tcp and unix packages.
//
// The package focuses on:
//   - Multiplexing many in-flight requests over few persistent connections
//   - Request/response correlation by message id, independent of reply order
//   - Failure fan-out: no call is left pending when a connection dies
//   - Connecting on demand without ever retrying a request
//
// Key Components:
//
//   - Channel: Owns one physical connection. Sending encodes a request,
//     registers a pending call and writes all frames of the message under a
//     write lock, so frames of concurrent sends never interleave. A background
//     read loop reassembles interleaved frames and completes the matching
//     pending call. Timeouts complete a call with a TimeoutError and remove its
//     registration, a late reply is discarded. On error all pending calls
//     complete with a CommunicationError and the channel becomes Disconnected.
//
//   - Pending: Handle of a sent request. Wait blocks until the result is
//     available or the context is done (which abandons the call).
//
//   - Pool: Bounded set of channels with round-robin or least-loaded selection.
//     The pool grows lazily once all connected channels are busy and reconnects
//     disconnected slots on the next Acquire. DisconnectAll closes all channels
//     in parallel.
//
// Performance Optimizations:
//
//   - Frame Batching: All frames of a message (header and payload) are written
//     with a single vectored write using net.Buffers.
//
//   - Buffered Reads: The read loop reads through a bufio.Reader sized by the
//     configured read buffer size.
//
//   - Lock-free Correlation: Pending calls are kept in an xsync.MapOf, the write
//     lock is only held while writing one message.
//
// Thread Safety:
//
//	All public methods are thread-safe. The read loop is the only goroutine that
//	completes calls with replies, exactly-once delivery is guaranteed by
//	removing the registration before delivering.
package base
