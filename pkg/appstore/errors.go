package appstore

import (
	"errors"
	"fmt"
)

// ErrNotFound means a lookup or search yielded nothing.
var ErrNotFound = errors.New("app not found")

// TransportError wraps a network-level failure (unreachable, timeout).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-success HTTP response; the status code is preserved.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status %d", e.StatusCode) }

// DecodeError wraps a payload that could not be parsed into the expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }
