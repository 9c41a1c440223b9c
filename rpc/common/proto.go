package common

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Request Structure
// --------------------------------------------------------------------------

// Request is a single logical database operation as it is sent over a VST
// connection. A Request is a value type: the With* helpers return a modified
// copy and never mutate the receiver, so a built Request can be shared freely.
type Request struct {
	// Database the path is scoped to (e.g. "_system")
	Database string
	// Method is the HTTP-like verb of the request
	Method RequestMethod
	// Path is the database relative path (e.g. "/_api/version")
	Path string
	// Headers are sent as the VST meta object
	Headers map[string]string
	// Query holds the query parameters
	Query map[string]string
	// Body is the opaque payload appended after the envelope
	Body []byte
}

// NewRequest creates a new request without headers, query parameters and body
func NewRequest(database string, method RequestMethod, path string) Request {
	return Request{
		Database: database,
		Method:   method,
		Path:     path,
	}
}

// WithHeader returns a copy of the request with the given header set.
// Header names are lower-cased since VST meta keys are case-sensitive.
func (r Request) WithHeader(key, value string) Request {
	r.Headers = copyWith(r.Headers, strings.ToLower(key), value)
	return r
}

// WithQuery returns a copy of the request with the given query parameter set
func (r Request) WithQuery(key, value string) Request {
	r.Query = copyWith(r.Query, key, value)
	return r
}

// WithBody returns a copy of the request carrying the given body
func (r Request) WithBody(body []byte) Request {
	r.Body = append([]byte(nil), body...)
	return r
}

// String returns a short description (method, database and path) used in logs
func (r Request) String() string {
	return fmt.Sprintf("%s /_db/%s%s", r.Method, r.Database, r.Path)
}

// --------------------------------------------------------------------------
// Response Structure
// --------------------------------------------------------------------------

// Response is a decoded reply to a Request
type Response struct {
	// Version of the VST envelope
	Version int
	// Type of the envelope (always MsgTResponse for replies)
	Type MessageType
	// StatusCode is the HTTP-like status of the reply
	StatusCode int
	// Headers contains the VST meta object of the reply
	Headers map[string]string
	// Body is the opaque payload following the envelope
	Body []byte
}

// IsSuccess reports whether the status code is in the 2xx range
func (r Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Header returns the value of a header, the lookup is case-insensitive
func (r Response) Header(key string) string {
	if v, ok := r.Headers[key]; ok {
		return v
	}
	return r.Headers[strings.ToLower(key)]
}

// --------------------------------------------------------------------------
// Authentication Structure
// --------------------------------------------------------------------------

// Authentication is the credential message sent once per connection
// before any application message
type Authentication struct {
	Encryption string // always "plain" for user/password
	User       string
	Password   string
}

// NewPlainAuthentication creates a plain user/password authentication message
func NewPlainAuthentication(user, password string) Authentication {
	return Authentication{
		Encryption: "plain",
		User:       user,
		Password:   password,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType is the second element of every VST envelope
type MessageType int

const (
	MsgTUnknown        MessageType = 0
	MsgTRequest        MessageType = 1    // Client request
	MsgTResponse       MessageType = 2    // Server response
	MsgTAuthentication MessageType = 1000 // Credential exchange
)

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTRequest:
		return "request"
	case MsgTResponse:
		return "response"
	case MsgTAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// EnvelopeVersion is the only envelope version spoken by this package
const EnvelopeVersion = 1

// --------------------------------------------------------------------------
// Request Method Definition
// --------------------------------------------------------------------------

// RequestMethod is the VST request type. The numeric values are part of the
// wire format and must not be changed.
type RequestMethod int

const (
	MethodDelete  RequestMethod = 0
	MethodGet     RequestMethod = 1
	MethodPost    RequestMethod = 2
	MethodPut     RequestMethod = 3
	MethodHead    RequestMethod = 4
	MethodPatch   RequestMethod = 5
	MethodOptions RequestMethod = 6
)

// String returns the HTTP verb of the method
func (m RequestMethod) String() string {
	switch m {
	case MethodDelete:
		return "DELETE"
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodHead:
		return "HEAD"
	case MethodPatch:
		return "PATCH"
	case MethodOptions:
		return "OPTIONS"
	default:
		return fmt.Sprintf("METHOD(%d)", int(m))
	}
}

// ParseRequestMethod converts an HTTP verb (case-insensitive) to a RequestMethod
func ParseRequestMethod(s string) (RequestMethod, error) {
	switch strings.ToUpper(s) {
	case "DELETE":
		return MethodDelete, nil
	case "GET":
		return MethodGet, nil
	case "POST":
		return MethodPost, nil
	case "PUT":
		return MethodPut, nil
	case "HEAD":
		return MethodHead, nil
	case "PATCH":
		return MethodPatch, nil
	case "OPTIONS":
		return MethodOptions, nil
	default:
		return 0, fmt.Errorf("unknown request method: %s", s)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func copyWith(m map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}
