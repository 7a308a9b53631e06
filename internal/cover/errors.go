package cover

import (
	"errors"
	"fmt"

	"github.com/muurk/coopdoor/internal/door"
)

// FaultKind classifies why a cover command did not complete
type FaultKind int

const (
	// FaultUnconfirmed means the door never confirmed the command. It may
	// or may not have moved.
	FaultUnconfirmed FaultKind = iota
	// FaultRejected means the command was refused, either locally
	// (another command in flight) or by the door reporting another state
	FaultRejected
)

// String returns a human-readable name for the fault kind
func (k FaultKind) String() string {
	switch k {
	case FaultUnconfirmed:
		return "unconfirmed"
	case FaultRejected:
		return "rejected"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching against a *Fault
var (
	ErrUnconfirmed = errors.New("cover command unconfirmed")
	ErrRejected    = errors.New("cover command rejected")
)

// Fault is returned by Controller.Open and Controller.Close
type Fault struct {
	Kind   FaultKind
	Target door.State
	Err    error
}

// Error implements the error interface
func (f *Fault) Error() string {
	verb := "open"
	if f.Target == door.Closed {
		verb = "close"
	}
	if f.Err != nil {
		return fmt.Sprintf("%s %s: %v", verb, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s %s", verb, f.Kind)
}

// Unwrap returns the underlying link or door error
func (f *Fault) Unwrap() error {
	return f.Err
}

// Is matches ErrUnconfirmed and ErrRejected by kind
func (f *Fault) Is(target error) bool {
	switch target {
	case ErrUnconfirmed:
		return f.Kind == FaultUnconfirmed
	case ErrRejected:
		return f.Kind == FaultRejected
	}
	return false
}

// IsUnconfirmed checks if the door state is uncertain after err
func IsUnconfirmed(err error) bool {
	return errors.Is(err, ErrUnconfirmed)
}

// IsRejected checks if err means the command was refused
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
