package httpdispatch

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the failure class of a request. The set is closed:
// the network layer maps every transport failure onto one of these kinds
// before it reaches an error listener.
type ErrorKind int

const (
	// KindNetwork indicates an I/O failure while exchanging data with the server.
	KindNetwork ErrorKind = iota
	// KindServer indicates a 4xx/5xx response other than an auth failure.
	KindServer
	// KindAuthFailure indicates a 401 or 403 response.
	KindAuthFailure
	// KindParse indicates a response body that could not be parsed.
	KindParse
	// KindTimeout indicates the retry policy exhausted its per-attempt timeouts.
	KindTimeout
	// KindNoConnection indicates the server could not be reached at all.
	KindNoConnection
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindAuthFailure:
		return "auth-failure"
	case KindParse:
		return "parse"
	case KindTimeout:
		return "timeout"
	case KindNoConnection:
		return "no-connection"
	default:
		return "unknown"
	}
}

// Error is the failure surfaced to error listeners. It carries the
// originating network response when one was received and the time spent in
// the network layer, stamped by the network dispatcher.
type Error struct {
	Kind          ErrorKind
	Response      *NetworkResponse
	NetworkTimeMs int64

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("httpdispatch: %s error: %v", e.Kind, e.cause)
	}
	if e.Response != nil {
		return fmt.Sprintf("httpdispatch: %s error: status %d", e.Kind, e.Response.StatusCode)
	}
	return fmt.Sprintf("httpdispatch: %s error", e.Kind)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewNetworkError returns an Error of kind KindNetwork wrapping cause.
func NewNetworkError(cause error) *Error {
	return &Error{Kind: KindNetwork, cause: cause}
}

// NewServerError returns an Error of kind KindServer carrying the offending
// response.
func NewServerError(resp *NetworkResponse) *Error {
	return &Error{Kind: KindServer, Response: resp}
}

// NewAuthFailureError returns an Error of kind KindAuthFailure carrying the
// offending response.
func NewAuthFailureError(resp *NetworkResponse) *Error {
	return &Error{Kind: KindAuthFailure, Response: resp}
}

// NewParseError returns an Error of kind KindParse wrapping cause.
func NewParseError(cause error) *Error {
	return &Error{Kind: KindParse, cause: cause}
}

// NewTimeoutError returns an Error of kind KindTimeout wrapping cause.
func NewTimeoutError(cause error) *Error {
	return &Error{Kind: KindTimeout, cause: cause}
}

// NewNoConnectionError returns an Error of kind KindNoConnection wrapping cause.
func NewNoConnectionError(cause error) *Error {
	return &Error{Kind: KindNoConnection, cause: cause}
}

// asError coerces err into *Error, wrapping unclassified failures as network
// errors so the error listener always observes a member of the taxonomy.
func asError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return NewNetworkError(err)
}
