package serializer

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"math"
)

// headerCodec encodes and splits the envelope header of a message. The header
// is always an array, the remaining bytes of the message are the body.
type headerCodec interface {
	name() string
	encodeHeader(hdr []interface{}) ([]byte, error)
	splitHeader(b []byte) (hdr []interface{}, body []byte, err error)
	marshal(v interface{}) ([]byte, error)
	unmarshal(b []byte, v interface{}) error
}

// envelopeSerializer implements IRPCSerializer for any header codec
type envelopeSerializer struct {
	codec headerCodec
}

// Envelope layouts (positions in the header array)
//
//	request:        [version, type, database, requestType, path, parameters, meta]
//	response:       [version, type, responseCode, meta]
//	authentication: [version, type, encryption, user, password]
const (
	requestHeaderLen  = 7
	responseHeaderLen = 3 // meta is optional
	authHeaderLen     = 5
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (s *envelopeSerializer) Name() string {
	return s.codec.name()
}

func (s *envelopeSerializer) Marshal(v interface{}) ([]byte, error) {
	return s.codec.marshal(v)
}

func (s *envelopeSerializer) Unmarshal(b []byte, v interface{}) error {
	return s.codec.unmarshal(b, v)
}

func (s *envelopeSerializer) SerializeRequest(req common.Request) ([]byte, error) {
	hdr := []interface{}{
		common.EnvelopeVersion,
		int(common.MsgTRequest),
		req.Database,
		int(req.Method),
		req.Path,
		nonNil(req.Query),
		nonNil(req.Headers),
	}
	return s.withBody(hdr, req.Body)
}

func (s *envelopeSerializer) DeserializeRequest(b []byte, req *common.Request) error {
	hdr, body, err := s.codec.splitHeader(b)
	if err != nil {
		return err
	}
	if len(hdr) < requestHeaderLen {
		return fmt.Errorf("expected a request header of %d elements, got %d", requestHeaderLen, len(hdr))
	}
	if err := expectType(hdr, common.MsgTRequest); err != nil {
		return err
	}

	database, ok := hdr[2].(string)
	if !ok {
		return fmt.Errorf("expected database to be a string, got %T", hdr[2])
	}
	method, err := toInt(hdr[3])
	if err != nil {
		return fmt.Errorf("invalid request type: %w", err)
	}
	path, ok := hdr[4].(string)
	if !ok {
		return fmt.Errorf("expected path to be a string, got %T", hdr[4])
	}
	query, err := toStringMap(hdr[5])
	if err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	meta, err := toStringMap(hdr[6])
	if err != nil {
		return fmt.Errorf("invalid meta: %w", err)
	}

	*req = common.Request{
		Database: database,
		Method:   common.RequestMethod(method),
		Path:     path,
		Query:    query,
		Headers:  meta,
		Body:     body,
	}
	return nil
}

func (s *envelopeSerializer) SerializeResponse(resp common.Response) ([]byte, error) {
	hdr := []interface{}{
		common.EnvelopeVersion,
		int(common.MsgTResponse),
		resp.StatusCode,
		nonNil(resp.Headers),
	}
	return s.withBody(hdr, resp.Body)
}

func (s *envelopeSerializer) DeserializeResponse(b []byte, resp *common.Response) error {
	hdr, body, err := s.codec.splitHeader(b)
	if err != nil {
		return err
	}
	if len(hdr) < responseHeaderLen {
		return fmt.Errorf("expected a response header of at least %d elements, got %d", responseHeaderLen, len(hdr))
	}

	version, err := toInt(hdr[0])
	if err != nil {
		return fmt.Errorf("invalid version: %w", err)
	}
	msgType, err := toInt(hdr[1])
	if err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}
	status, err := toInt(hdr[2])
	if err != nil {
		return fmt.Errorf("invalid response code: %w", err)
	}

	// Meta is optional
	var meta map[string]string
	if len(hdr) > 3 {
		if meta, err = toStringMap(hdr[3]); err != nil {
			return fmt.Errorf("invalid meta: %w", err)
		}
	}

	*resp = common.Response{
		Version:    version,
		Type:       common.MessageType(msgType),
		StatusCode: status,
		Headers:    meta,
		Body:       body,
	}
	return nil
}

func (s *envelopeSerializer) SerializeAuthentication(auth common.Authentication) ([]byte, error) {
	encryption := auth.Encryption
	if encryption == "" {
		encryption = "plain"
	}
	hdr := []interface{}{
		common.EnvelopeVersion,
		int(common.MsgTAuthentication),
		encryption,
		auth.User,
		auth.Password,
	}
	return s.codec.encodeHeader(hdr)
}

func (s *envelopeSerializer) DeserializeAuthentication(b []byte, auth *common.Authentication) error {
	hdr, _, err := s.codec.splitHeader(b)
	if err != nil {
		return err
	}
	if len(hdr) < authHeaderLen {
		return fmt.Errorf("expected an authentication header of %d elements, got %d", authHeaderLen, len(hdr))
	}
	if err := expectType(hdr, common.MsgTAuthentication); err != nil {
		return err
	}

	fields := make([]string, 3)
	for i := range fields {
		v, ok := hdr[2+i].(string)
		if !ok && hdr[2+i] != nil {
			return fmt.Errorf("expected authentication field %d to be a string, got %T", 2+i, hdr[2+i])
		}
		fields[i] = v
	}

	*auth = common.Authentication{
		Encryption: fields[0],
		User:       fields[1],
		Password:   fields[2],
	}
	return nil
}

func (s *envelopeSerializer) PeekType(b []byte) (common.MessageType, error) {
	hdr, _, err := s.codec.splitHeader(b)
	if err != nil {
		return common.MsgTUnknown, err
	}
	if len(hdr) < 2 {
		return common.MsgTUnknown, fmt.Errorf("header too short: %d elements", len(hdr))
	}
	t, err := toInt(hdr[1])
	if err != nil {
		return common.MsgTUnknown, fmt.Errorf("invalid message type: %w", err)
	}
	return common.MessageType(t), nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// withBody encodes the header and appends the raw body
func (s *envelopeSerializer) withBody(hdr []interface{}, body []byte) ([]byte, error) {
	h, err := s.codec.encodeHeader(hdr)
	if err != nil {
		return nil, err
	}
	result := make([]byte, 0, len(h)+len(body))
	result = append(result, h...)
	result = append(result, body...)
	return result, nil
}

// expectType checks the type field of a decoded header
func expectType(hdr []interface{}, expected common.MessageType) error {
	t, err := toInt(hdr[1])
	if err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}
	if common.MessageType(t) != expected {
		return fmt.Errorf("unexpected message type: %s, expected %s", common.MessageType(t), expected)
	}
	return nil
}

// nonNil makes sure an empty map is encoded as an empty object
func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// toInt converts any decoded number into an int
func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("number %d out of range", n)
		}
		return int(n), nil
	case float32:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// toStringMap converts a decoded object into a string map.
// Empty objects are returned as nil.
func toStringMap(v interface{}) (map[string]string, error) {
	if v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	if len(obj) == 0 {
		return nil, nil
	}

	result := make(map[string]string, len(obj))
	for k, raw := range obj {
		switch val := raw.(type) {
		case string:
			result[k] = val
		case nil:
			result[k] = ""
		default:
			result[k] = fmt.Sprint(val)
		}
	}
	return result, nil
}
