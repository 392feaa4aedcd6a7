package freebox

import (
	"context"
	"errors"
	"fmt"
)

// ErrDeviceNotFound is wrapped by every Discover failure.
var ErrDeviceNotFound = errors.New("freebox not found")

// ErrorKind discriminates the failure families of the client.
type ErrorKind string

const (
	KindTransport    ErrorKind = "transport"
	KindApplication  ErrorKind = "application"
	KindPrecondition ErrorKind = "precondition"
	KindUnknown      ErrorKind = "unknown"
)

// TransportError indicates the box could not be reached or did not answer
// with a readable envelope.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("freebox %s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("freebox %s unreachable: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request hit its deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(e.Err, &te) && te.Timeout()
}

// ApplicationError is a response with success=false or a body that does not
// match the expected result.
type ApplicationError struct {
	Op      string
	Code    string
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("freebox %s rejected: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("freebox %s rejected: %s (%s)", e.Op, e.Code, e.Message)
}

// PreconditionError is returned before any request is made when the client
// is not in the state the operation needs.
type PreconditionError struct {
	Op       string
	Missing  string
	// Receiver is set when the configured receiver was the missing piece.
	Receiver ReceiverAvailability
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("freebox %s: %s", e.Op, e.Missing)
}

// Kind classifies err into one of the client's error families.
func Kind(err error) ErrorKind {
	var transportErr *TransportError
	var appErr *ApplicationError
	var preErr *PreconditionError
	switch {
	case errors.As(err, &preErr):
		return KindPrecondition
	case errors.As(err, &appErr):
		return KindApplication
	case errors.As(err, &transportErr):
		return KindTransport
	default:
		return KindUnknown
	}
}

func malformed(op string, err error) *ApplicationError {
	return &ApplicationError{Op: op, Code: "malformed_response", Message: err.Error()}
}
