package aria2rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when aria2 rejects the configured secret.
	ErrUnauthorized = errors.New("aria2 rpc: unauthorized, check the " +
		"rpc secret")

	// ErrNoTrackers is returned by SetTrackers for an empty list. aria2
	// would accept it and silently drop every tracker.
	ErrNoTrackers = errors.New("aria2 rpc: refusing to set an empty " +
		"tracker list")
)

// TransportError is returned when the request never got an HTTP answer:
// connection refused, DNS failure, TLS failure or timeout.
type TransportError struct {
	// URL is the endpoint that was called.
	URL string

	// Method is the JSON-RPC method that was being called.
	Method string

	// Err is the underlying error.
	Err error
}

// Error returns a human readable description of the failure.
func (e *TransportError) Error() string {
	return fmt.Sprintf("aria2 rpc %s at %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when aria2 answered but the call did not succeed:
// an error object in the response, an unexpected HTTP status or a body that
// is not a JSON-RPC response.
type ProtocolError struct {
	// Method is the JSON-RPC method that was called.
	Method string

	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code is the JSON-RPC error code, zero when the response carried no
	// error object.
	Code int

	// Message is the JSON-RPC error message.
	Message string

	// Err is set when the response could not be decoded.
	Err error
}

// Error returns a human readable description of the failure.
func (e *ProtocolError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("aria2 rpc %s: error %d: %s", e.Method,
			e.Code, e.Message)

	case e.Err != nil:
		return fmt.Sprintf("aria2 rpc %s: invalid response (HTTP %d): "+
			"%v", e.Method, e.StatusCode, e.Err)

	default:
		return fmt.Sprintf("aria2 rpc %s: unexpected HTTP status %d",
			e.Method, e.StatusCode)
	}
}

// Unwrap returns the decoding error, if any.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
