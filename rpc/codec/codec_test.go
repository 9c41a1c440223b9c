package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/ValentinKolb/arangovst/rpc/serializer"
	"io"
	"math/rand"
	"testing"
)

// testData creates a deterministic payload of the given size
func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// isMalformed reports whether err is a MalformedFrameError
func isMalformed(err error) bool {
	var mf *common.MalformedFrameError
	return errors.As(err, &mf)
}

// TestSplit tests the deterministic chunking of messages
func TestSplit(t *testing.T) {
	testCases := []struct {
		name      string
		size      int
		chunkSize int
		expected  []int
	}{
		{name: "Empty message", size: 0, chunkSize: 4000, expected: []int{0}},
		{name: "Single chunk", size: 100, chunkSize: 4000, expected: []int{100}},
		{name: "Exact chunk", size: 4000, chunkSize: 4000, expected: []int{4000}},
		{name: "Three chunks", size: 10000, chunkSize: 4000, expected: []int{4000, 4000, 2000}},
		{name: "Exact multiple", size: 8000, chunkSize: 4000, expected: []int{4000, 4000}},
		{name: "No chunk size", size: 10000, chunkSize: 0, expected: []int{10000}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frames := Split(42, testData(tc.size), tc.chunkSize)

			if len(frames) != len(tc.expected) {
				t.Fatalf("Expected %d frames, got %d", len(tc.expected), len(frames))
			}
			for i, f := range frames {
				if f.MessageID != 42 {
					t.Errorf("Frame %d has message id %d, expected 42", i, f.MessageID)
				}
				if f.Index != uint32(i) {
					t.Errorf("Frame %d has index %d", i, f.Index)
				}
				if f.Count != uint32(len(tc.expected)) {
					t.Errorf("Frame %d has count %d, expected %d", i, f.Count, len(tc.expected))
				}
				if len(f.Payload) != tc.expected[i] {
					t.Errorf("Frame %d has %d bytes, expected %d", i, len(f.Payload), tc.expected[i])
				}
				if f.MessageLength != uint64(tc.size) {
					t.Errorf("Frame %d has message length %d, expected %d", i, f.MessageLength, tc.size)
				}
			}
		})
	}
}

// TestJoinRoundTrip tests that split frames are reassembled in any order
func TestJoinRoundTrip(t *testing.T) {
	data := testData(10000)
	frames := Split(7, data, 4000)

	orders := map[string][]int{
		"In order":     {0, 1, 2},
		"Reversed":     {2, 1, 0},
		"First middle": {1, 0, 2},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			shuffled := make([]Frame, 0, len(frames))
			for _, i := range order {
				shuffled = append(shuffled, frames[i])
			}

			result, err := Join(shuffled)
			if err != nil {
				t.Fatalf("Join failed: %v", err)
			}
			if !bytes.Equal(result, data) {
				t.Errorf("Reassembled message differs from the original")
			}
		})
	}
}

// TestJoinMalformed tests that inconsistent frame sets are rejected
func TestJoinMalformed(t *testing.T) {
	base := func() []Frame {
		return Split(9, testData(10000), 4000)
	}

	testCases := []struct {
		name   string
		frames func() []Frame
	}{
		{name: "No frames", frames: func() []Frame { return nil }},
		{name: "Missing chunk", frames: func() []Frame {
			f := base()
			return []Frame{f[0], f[2]}
		}},
		{name: "Missing first chunk", frames: func() []Frame {
			f := base()
			return f[1:]
		}},
		{name: "Mixed message ids", frames: func() []Frame {
			f := base()
			f[1].MessageID = 10
			return f
		}},
		{name: "Length mismatch", frames: func() []Frame {
			f := base()
			f[2].Payload = f[2].Payload[:100]
			return f
		}},
		{name: "Non contiguous indices", frames: func() []Frame {
			f := base()
			f[2].Index = 5
			return f
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Join(tc.frames())
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !isMalformed(err) {
				t.Errorf("Expected MalformedFrameError, got %T: %v", err, err)
			}
		})
	}
}

// TestFrameIO tests writing and reading frames including the header layout
func TestFrameIO(t *testing.T) {
	data := testData(10000)
	frames := Split(0x0102030405060708, data, 4000)

	var buf bytes.Buffer
	if err := WriteFrames(&buf, frames); err != nil {
		t.Fatalf("WriteFrames failed: %v", err)
	}

	raw := buf.Bytes()
	if len(raw) != 3*HeaderSize+len(data) {
		t.Fatalf("Expected %d bytes on the wire, got %d", 3*HeaderSize+len(data), len(raw))
	}

	// Check the first header byte for byte
	if l := binary.LittleEndian.Uint32(raw[0:4]); l != HeaderSize+4000 {
		t.Errorf("Expected chunk length %d, got %d", HeaderSize+4000, l)
	}
	if x := binary.LittleEndian.Uint32(raw[4:8]); x != 3<<1|1 {
		t.Errorf("Expected chunkX %d on the first chunk, got %d", 3<<1|1, x)
	}
	if id := binary.LittleEndian.Uint64(raw[8:16]); id != 0x0102030405060708 {
		t.Errorf("Unexpected message id %x", id)
	}
	if ml := binary.LittleEndian.Uint64(raw[16:24]); ml != 10000 {
		t.Errorf("Expected message length 10000, got %d", ml)
	}

	// Check the chunkX of the second chunk
	second := raw[HeaderSize+4000:]
	if x := binary.LittleEndian.Uint32(second[4:8]); x != 1<<1 {
		t.Errorf("Expected chunkX %d on the second chunk, got %d", 1<<1, x)
	}

	// Read them back
	r := bytes.NewReader(raw)
	var read []Frame
	for i := 0; i < 3; i++ {
		f, err := ReadFrame(r, 0)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		read = append(read, f)
	}
	if read[0].Count != 3 || read[1].Count != 0 || read[2].Index != 2 {
		t.Errorf("Unexpected frame metadata: %+v %+v %+v", read[0].Count, read[1].Count, read[2].Index)
	}

	if _, err := ReadFrame(r, 0); err != io.EOF {
		t.Errorf("Expected io.EOF at the end, got %v", err)
	}

	result, err := Join(read)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if !bytes.Equal(result, data) {
		t.Errorf("Message differs after frame I/O")
	}
}

// TestReadFrameMalformed tests the header validation
func TestReadFrameMalformed(t *testing.T) {
	header := func(chunkLength, chunkX uint32, messageLength uint64) []byte {
		h := make([]byte, HeaderSize)
		binary.LittleEndian.PutUint32(h[0:4], chunkLength)
		binary.LittleEndian.PutUint32(h[4:8], chunkX)
		binary.LittleEndian.PutUint64(h[8:16], 1)
		binary.LittleEndian.PutUint64(h[16:24], messageLength)
		return h
	}

	testCases := []struct {
		name    string
		data    []byte
		maxSize uint64
	}{
		{name: "Chunk shorter than header", data: header(10, 3, 0)},
		{name: "Message too large", data: header(HeaderSize+10, 3, 1000), maxSize: 100},
		{name: "Payload larger than message", data: header(HeaderSize+10, 3, 5)},
		{name: "Zero chunk count", data: header(HeaderSize, 1, 0)},
		{name: "Follow-up with index 0", data: header(HeaderSize, 0, 0)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tc.data), tc.maxSize)
			if !isMalformed(err) {
				t.Errorf("Expected MalformedFrameError, got %v", err)
			}
		})
	}

	// A truncated payload is an I/O error, not a protocol error
	t.Run("Truncated payload", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader(header(HeaderSize+10, 3, 10)), 0)
		if err != io.ErrUnexpectedEOF {
			t.Errorf("Expected io.ErrUnexpectedEOF, got %v", err)
		}
	})
}

// TestAssemblerInterleaved tests that interleaved frames of two messages
// are reassembled independently
func TestAssemblerInterleaved(t *testing.T) {
	dataA := testData(9000)
	dataB := bytes.Repeat([]byte{0xab}, 7000)
	framesA := Split(1, dataA, 2000)
	framesB := Split(2, dataB, 2000)

	// Build a random interleaving that keeps no particular order
	all := append(append([]Frame{}, framesA...), framesB...)
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 20; round++ {
		rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })

		a := NewAssembler()
		completed := map[uint64][]byte{}
		for _, f := range all {
			data, complete, err := a.Add(f)
			if err != nil {
				t.Fatalf("Round %d: Add failed: %v", round, err)
			}
			if complete {
				if _, dup := completed[f.MessageID]; dup {
					t.Fatalf("Round %d: message %d completed twice", round, f.MessageID)
				}
				completed[f.MessageID] = data
			}
		}

		if !bytes.Equal(completed[1], dataA) {
			t.Errorf("Round %d: message 1 not reassembled correctly", round)
		}
		if !bytes.Equal(completed[2], dataB) {
			t.Errorf("Round %d: message 2 not reassembled correctly", round)
		}
		if a.Pending() != 0 {
			t.Errorf("Round %d: expected no pending messages, got %d", round, a.Pending())
		}
	}
}

// TestAssemblerDuplicate tests that a duplicated chunk index is rejected
func TestAssemblerDuplicate(t *testing.T) {
	frames := Split(3, testData(5000), 2000)
	a := NewAssembler()

	if _, _, err := a.Add(frames[1]); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, _, err := a.Add(frames[1]); !isMalformed(err) {
		t.Errorf("Expected MalformedFrameError for duplicate chunk, got %v", err)
	}
	if a.Pending() != 0 {
		t.Errorf("Expected state of the broken message to be dropped")
	}
}

// TestEncodeDecode tests the full request/response path through the codec
func TestEncodeDecode(t *testing.T) {
	s := serializer.NewVelocyPackSerializer()
	body := testData(10000)
	req := common.NewRequest("_system", common.MethodPost, "/_api/document/mycol").WithBody(body)

	frames, err := EncodeRequest(s, 5, req, 4000)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(frames))
	}

	data, err := Join([]Frame{frames[2], frames[0], frames[1]})
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	expected, _ := s.SerializeRequest(req)
	if !bytes.Equal(data, expected) {
		t.Fatalf("Reassembled request is not byte identical to its serialized form")
	}

	var decoded common.Request
	if err := s.DeserializeRequest(data, &decoded); err != nil {
		t.Fatalf("DeserializeRequest failed: %v", err)
	}
	if !bytes.Equal(decoded.Body, body) {
		t.Errorf("Body differs after round trip")
	}

	// Response direction
	resp := common.Response{Version: 1, Type: common.MsgTResponse, StatusCode: 201, Body: body}
	respFrames, err := EncodeResponse(s, 5, resp, 4000)
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}
	decodedResp, err := DecodeResponse(s, respFrames)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if decodedResp.StatusCode != 201 || !bytes.Equal(decodedResp.Body, body) {
		t.Errorf("Unexpected response after round trip: status %d", decodedResp.StatusCode)
	}

	// Garbage is a protocol error
	if _, err := DecodeResponse(s, Split(6, []byte{0x01}, 4000)); !isMalformed(err) {
		t.Errorf("Expected MalformedFrameError for garbage envelope, got %v", err)
	}
}
