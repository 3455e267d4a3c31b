package modrender

import (
	"errors"
	"fmt"
)

// LoadErrorKind classifies why a module could not be loaded.
type LoadErrorKind int

const (
	BadSignature LoadErrorKind = iota + 1 // no supported format tag found
	Truncated                             // a declared size exceeds the available bytes
	Inconsistent                          // the file contradicts itself
)

func (k LoadErrorKind) String() string {
	switch k {
	case BadSignature:
		return "bad signature"
	case Truncated:
		return "truncated"
	case Inconsistent:
		return "inconsistent"
	default:
		return fmt.Sprintf("LoadErrorKind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching against a *LoadError.
var (
	ErrBadSignature = errors.New("unrecognized module signature")
	ErrTruncated    = errors.New("module data truncated")
	ErrInconsistent = errors.New("module data inconsistent")

	ErrInvalidConfig = errors.New("invalid config")
)

// LoadError is returned by the loaders. Offset is the file offset the problem
// was found at, or -1 when it does not apply.
type LoadError struct {
	Kind   LoadErrorKind
	Offset int64
	Err    error
}

func newLoadError(kind LoadErrorKind, offset int64, err error) *LoadError {
	return &LoadError{Kind: kind, Offset: offset, Err: err}
}

func (e *LoadError) Error() string {
	msg := "load: " + e.Kind.String()
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" at offset %d", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *LoadError) Is(target error) bool {
	switch target {
	case ErrBadSignature:
		return e.Kind == BadSignature
	case ErrTruncated:
		return e.Kind == Truncated
	case ErrInconsistent:
		return e.Kind == Inconsistent
	}
	return false
}
