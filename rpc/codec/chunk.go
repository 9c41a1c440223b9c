package codec

import (
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"sort"
)

// --------------------------------------------------------------------------
// Chunking
// --------------------------------------------------------------------------

// Split cuts a serialized message into frames whose payloads are at most
// chunkSize bytes long. The result is deterministic, every frame carries
// the total count. A chunkSize <= 0 produces a single frame.
func Split(messageID uint64, data []byte, chunkSize int) []Frame {
	if chunkSize <= 0 || len(data) <= chunkSize {
		return []Frame{{
			MessageID:     messageID,
			Index:         0,
			Count:         1,
			MessageLength: uint64(len(data)),
			Payload:       data,
		}}
	}

	count := (len(data) + chunkSize - 1) / chunkSize
	frames := make([]Frame, 0, count)
	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(data))
		frames = append(frames, Frame{
			MessageID:     messageID,
			Index:         uint32(i),
			Count:         uint32(count),
			MessageLength: uint64(len(data)),
			Payload:       data[start:end],
		})
	}
	return frames
}

// Join reassembles the frames of one message in index order. The frames may be
// passed in any order. It fails with a *common.MalformedFrameError if the
// message ids differ, the first chunk is missing, the indices are not
// contiguous or the message length does not match the sum of the payloads.
func Join(frames []Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, common.NewMalformedFrameError(0, "no frames")
	}

	id := frames[0].MessageID
	sorted := make([]Frame, len(frames))
	copy(sorted, frames)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	first := sorted[0]
	if !first.IsFirst() {
		return nil, common.NewMalformedFrameError(id, "first chunk missing")
	}
	if int(first.Count) != len(sorted) {
		return nil, common.NewMalformedFrameError(id, "expected %d chunks, got %d", first.Count, len(sorted))
	}

	var total uint64
	for i, f := range sorted {
		if f.MessageID != id {
			return nil, common.NewMalformedFrameError(id, "chunk %d belongs to message %d", f.Index, f.MessageID)
		}
		if f.Index != uint32(i) {
			return nil, common.NewMalformedFrameError(id, "chunk indices not contiguous: expected %d, got %d", i, f.Index)
		}
		if f.MessageLength != first.MessageLength {
			return nil, common.NewMalformedFrameError(id, "chunk %d announces message length %d, first chunk %d", f.Index, f.MessageLength, first.MessageLength)
		}
		total += uint64(len(f.Payload))
	}
	if total != first.MessageLength {
		return nil, common.NewMalformedFrameError(id, "message length %d does not match payload sum %d", first.MessageLength, total)
	}

	// Optimize for single chunk messages
	if len(sorted) == 1 {
		return first.Payload, nil
	}

	data := make([]byte, 0, total)
	for _, f := range sorted {
		data = append(data, f.Payload...)
	}
	return data, nil
}

// --------------------------------------------------------------------------
// Message Encoding / Decoding
// --------------------------------------------------------------------------

// EncodeRequest serializes a request and splits it into frames
func EncodeRequest(s serializer.IRPCSerializer, messageID uint64, req common.Request, chunkSize int) ([]Frame, error) {
	data, err := s.SerializeRequest(req)
	if err != nil {
		return nil, err
	}
	return Split(messageID, data, chunkSize), nil
}

// EncodeAuthentication serializes a credential message and splits it into frames
func EncodeAuthentication(s serializer.IRPCSerializer, messageID uint64, auth common.Authentication, chunkSize int) ([]Frame, error) {
	data, err := s.SerializeAuthentication(auth)
	if err != nil {
		return nil, err
	}
	return Split(messageID, data, chunkSize), nil
}

// EncodeResponse serializes a response and splits it into frames
func EncodeResponse(s serializer.IRPCSerializer, messageID uint64, resp common.Response, chunkSize int) ([]Frame, error) {
	data, err := s.SerializeResponse(resp)
	if err != nil {
		return nil, err
	}
	return Split(messageID, data, chunkSize), nil
}

// DecodeResponse joins the frames of one message and decodes the response.
// An undecodable envelope is reported as *common.MalformedFrameError.
func DecodeResponse(s serializer.IRPCSerializer, frames []Frame) (common.Response, error) {
	data, err := Join(frames)
	if err != nil {
		return common.Response{}, err
	}
	return UnmarshalResponse(s, frames[0].MessageID, data)
}

// UnmarshalResponse decodes an already reassembled response message
func UnmarshalResponse(s serializer.IRPCSerializer, messageID uint64, data []byte) (common.Response, error) {
	var resp common.Response
	if err := s.DeserializeResponse(data, &resp); err != nil {
		return common.Response{}, common.NewMalformedFrameError(messageID, "invalid response envelope: %v", err)
	}
	return resp, nil
}
