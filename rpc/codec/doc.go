// Package codec implements the VelocyStream 1.1 chunk format. It sits between
// the serializer (which turns requests and responses into message bytes) and
// the transport (which owns the sockets).
//
// Chunk layout (24 byte header, little endian, followed by the payload):
//
//	uint32 chunkLength    header + payload
//	uint32 chunkX         (count << 1) | 1 on the first chunk, index << 1 otherwise
//	uint64 messageID
//	uint64 messageLength  length of the complete message
//
// Key Components:
//
//   - Split / Join: Deterministic chunking of a message and its validated
//     reassembly. Join accepts frames in any order.
//
//   - ReadFrame / WriteFrames: Frame I/O on a connection. All frames of one
//     message are written with a single vectored write (net.Buffers).
//
//   - Assembler: Per-connection accumulation of interleaved frames by message id.
//
//   - EncodeRequest / DecodeResponse: Convenience wrappers combining a
//     serializer with Split and Join.
//
// Every protocol violation is reported as *common.MalformedFrameError.
package codec
