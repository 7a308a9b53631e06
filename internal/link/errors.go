package link

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of link failure
type ErrorKind int

const (
	// KindBusy means a command was already pending. Nothing was sent.
	KindBusy ErrorKind = iota
	// KindExhausted means every attempt went unacknowledged
	KindExhausted
	// KindCancelled means the caller's context ended the exchange
	KindCancelled
	// KindIOFault means the transport failed. Not retried.
	KindIOFault
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindBusy:
		return "busy"
	case KindExhausted:
		return "exhausted"
	case KindCancelled:
		return "cancelled"
	case KindIOFault:
		return "I/O fault"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching against an *Error
var (
	ErrBusy      = errors.New("link busy")
	ErrExhausted = errors.New("link attempts exhausted")
	ErrCancelled = errors.New("link exchange cancelled")
)

// Error is returned by Link.Submit
type Error struct {
	Kind     ErrorKind
	Seq      uint16 // Sequence number of the command (zero for KindBusy)
	Attempts int    // Frames sent before giving up
	Err      error  // Underlying transport or context error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	switch e.Kind {
	case KindBusy:
		return "link busy: a command is already pending"
	case KindExhausted:
		return fmt.Sprintf("command %d unacknowledged after %d attempts", e.Seq, e.Attempts)
	}
	if e.Err != nil {
		return fmt.Sprintf("command %d %s after %d attempts: %v", e.Seq, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("command %d %s after %d attempts", e.Seq, e.Kind, e.Attempts)
}

// Unwrap returns the underlying error, so callers can match
// transport.ErrIOFault or context.Canceled through a link error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBusy:
		return e.Kind == KindBusy
	case ErrExhausted:
		return e.Kind == KindExhausted
	case ErrCancelled:
		return e.Kind == KindCancelled
	}
	return false
}

// NewBusy returns the error reported when a command is already pending
func NewBusy() *Error {
	return &Error{Kind: KindBusy}
}

// IsBusy checks if an error means a command was already pending
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsExhausted checks if an error means the retry budget ran out
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}

// IsCancelled checks if an error means the caller cancelled the exchange
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
