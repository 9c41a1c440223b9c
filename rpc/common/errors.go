package common

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned for every operation attempted after shutdown
var ErrClosed = errors.New("vst: client is closed")

// --------------------------------------------------------------------------
// Protocol Errors
// --------------------------------------------------------------------------

// MalformedFrameError reports a corrupted chunk or an inconsistent chunk set.
// It is fatal to the channel that received it.
type MalformedFrameError struct {
	MessageID uint64
	Reason    string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("vst: malformed frame (message %d): %s", e.MessageID, e.Reason)
}

// NewMalformedFrameError creates a MalformedFrameError with a formatted reason
func NewMalformedFrameError(messageID uint64, format string, args ...interface{}) error {
	return &MalformedFrameError{
		MessageID: messageID,
		Reason:    fmt.Sprintf(format, args...),
	}
}

// --------------------------------------------------------------------------
// Transport Errors
// --------------------------------------------------------------------------

// CommunicationError reports a socket or connection failure. The request may
// or may not have reached the server. A new channel is connected on next use.
type CommunicationError struct {
	Endpoint string
	Err      error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("vst: communication with %s failed: %v", e.Endpoint, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that no reply arrived within the configured timeout.
// The call is abandoned, a late reply is discarded.
type TimeoutError struct {
	MessageID uint64
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("vst: request %d timed out after %s", e.MessageID, e.After)
}

// Timeout makes TimeoutError satisfy the net.Error style timeout check
func (e *TimeoutError) Timeout() bool {
	return true
}

// --------------------------------------------------------------------------
// Server / Result Errors
// --------------------------------------------------------------------------

// RequestFailedError is returned when the server replies with a non-2xx status
type RequestFailedError struct {
	StatusCode   int
	ErrorNum     int
	ErrorMessage string
	// Body is the raw error payload as sent by the server
	Body []byte
}

func (e *RequestFailedError) Error() string {
	if e.ErrorMessage != "" {
		return fmt.Sprintf("vst: request failed with status %d (error %d): %s", e.StatusCode, e.ErrorNum, e.ErrorMessage)
	}
	return fmt.Sprintf("vst: request failed with status %d", e.StatusCode)
}

// DeserializationError is returned when a successful response could not
// be converted into the requested result
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("vst: failed to deserialize response: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// CollectionNotFoundError is returned when the server does not know a collection
type CollectionNotFoundError struct {
	Name string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("vst: collection %q not found", e.Name)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// IsStatus reports whether err is a RequestFailedError with the given status code
func IsStatus(err error, statusCode int) bool {
	var rf *RequestFailedError
	return errors.As(err, &rf) && rf.StatusCode == statusCode
}
