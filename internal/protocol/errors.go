package protocol

import (
	"errors"
	"fmt"
)

// CodecErrorKind represents why a frame was rejected
type CodecErrorKind int

const (
	// Malformed indicates a frame with the wrong size or unknown codes
	Malformed CodecErrorKind = iota
	// ChecksumMismatch indicates a frame whose checksum did not verify
	ChecksumMismatch
)

// String returns a human-readable name for the error kind
func (k CodecErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed frame"
	case ChecksumMismatch:
		return "checksum mismatch"
	default:
		return fmt.Sprintf("CodecErrorKind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching against a *CodecError
var (
	ErrMalformed        = errors.New("malformed frame")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// CodecError is returned by Decode for frames that must be discarded.
type CodecError struct {
	Kind    CodecErrorKind
	Message string
}

// Error implements the error interface
func (e *CodecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the package sentinels by kind
func (e *CodecError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Kind == Malformed
	case ErrChecksumMismatch:
		return e.Kind == ChecksumMismatch
	}
	return false
}

func newMalformed(message string) *CodecError {
	return &CodecError{Kind: Malformed, Message: message}
}

// IsCodecError checks if an error came from frame decoding
func IsCodecError(err error) bool {
	var codecErr *CodecError
	return errors.As(err, &codecErr)
}
