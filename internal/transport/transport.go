package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Transport is a half-duplex, lossy, frame-oriented radio channel. It does
// not retry and does not interpret frame contents. Callers must not Send
// while a Receive for the same exchange is outstanding.
type Transport interface {
	// Send transmits one frame. A nil error does not mean the frame arrived.
	Send(ctx context.Context, frame []byte) error

	// Receive waits up to timeout for the next frame. It returns an error
	// matching ErrTimeout when nothing arrives in time, and ctx.Err() when
	// ctx is done first.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)

	// Close releases the underlying radio handle.
	Close() error
}

// ErrorKind represents the category of transport failure
type ErrorKind int

const (
	// KindTimeout means nothing arrived within the receive timeout.
	// This is a normal outcome on a lossy radio.
	KindTimeout ErrorKind = iota
	// KindIOFault means the radio handle itself failed (port missing,
	// connection closed). Retrying the same frame will not help.
	KindIOFault
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindIOFault:
		return "I/O fault"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching against an *Error
var (
	ErrTimeout = errors.New("transport timeout")
	ErrIOFault = errors.New("transport I/O fault")
)

// Error is returned by Transport implementations
type Error struct {
	Kind ErrorKind // Category of failure
	Op   string    // Operation that failed ("send", "receive", "open")
	Err  error     // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Op, e.Kind)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrTimeout and ErrIOFault by kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrIOFault:
		return e.Kind == KindIOFault
	}
	return false
}

// NewTimeout creates a timeout error for op
func NewTimeout(op string) *Error {
	return &Error{Kind: KindTimeout, Op: op}
}

// NewIOFault creates an I/O fault for op caused by err
func NewIOFault(op string, err error) *Error {
	return &Error{Kind: KindIOFault, Op: op, Err: err}
}

// IsTimeout checks if an error is a receive timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsIOFault checks if an error is a radio I/O fault
func IsIOFault(err error) bool {
	return errors.Is(err, ErrIOFault)
}
