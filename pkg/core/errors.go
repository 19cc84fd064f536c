package core

import (
	"fmt"
)

// Error represents an engine error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrInvalidRequest covers misuse of the engine API (bad config,
	// sends against a closed session, double connect).
	ErrInvalidRequest ErrorType = "invalid_request_error"
	// ErrAcquisition covers local media-device failures: microphone or
	// camera permission denied, device busy or unavailable.
	ErrAcquisition ErrorType = "acquisition_error"
	// ErrConnection covers remote handshake failures: the endpoint
	// rejected the session configuration or the dial failed.
	ErrConnection ErrorType = "connection_error"
	// ErrTransport covers mid-session failures: network drop, malformed
	// inbound frames.
	ErrTransport ErrorType = "transport_error"
	// ErrDecode covers malformed inbound audio payloads. Decode errors
	// never tear down the session; the offending chunk is dropped.
	ErrDecode ErrorType = "decode_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewAcquisitionError creates a media-device acquisition error.
func NewAcquisitionError(message string) *Error {
	return &Error{
		Type:    ErrAcquisition,
		Message: message,
	}
}

// NewConnectionError creates a remote handshake error.
func NewConnectionError(message string) *Error {
	return &Error{
		Type:    ErrConnection,
		Message: message,
	}
}

// NewTransportError creates a mid-session transport error.
func NewTransportError(message string) *Error {
	return &Error{
		Type:    ErrTransport,
		Message: message,
	}
}

// NewDecodeError creates an inbound payload decode error.
func NewDecodeError(message string) *Error {
	return &Error{
		Type:    ErrDecode,
		Message: message,
	}
}

// IsFatal reports whether the error should tear the session down.
// Decode errors are recoverable: the chunk is dropped and playback
// continues with subsequent chunks.
func (e *Error) IsFatal() bool {
	return e.Type != ErrDecode
}
