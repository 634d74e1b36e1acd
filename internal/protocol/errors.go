package protocol

import (
	"errors"
	"fmt"
)

// ErrTransportUnavailable is returned when a send is attempted on a
// connection that is closing and cannot take it.
var ErrTransportUnavailable = errors.New("transport unavailable")

// ParseError reports inbound text that is not well-formed, or whose body does
// not match the shape its id or event type implies.
type ParseError struct {
	Raw string
	Err error
}

// Error returns a human-readable error message.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure: %v: %s", e.Err, truncate(e.Raw, 120))
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(raw string, err error) *ParseError {
	return &ParseError{Raw: raw, Err: err}
}

// UnroutableError reports a well-formed message whose id or event type is
// outside the known vocabulary.
type UnroutableError struct {
	ID    int
	Event string
}

// Error returns a human-readable error message.
func (e *UnroutableError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("unroutable message: event %q", e.Event)
	}
	return fmt.Sprintf("unroutable message: id %d", e.ID)
}

// IsParseFailure reports whether err is, or wraps, a ParseError.
func IsParseFailure(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsUnroutable reports whether err is, or wraps, an UnroutableError.
func IsUnroutable(err error) bool {
	var ue *UnroutableError
	return errors.As(err, &ue)
}

// IsTransportUnavailable reports whether err wraps ErrTransportUnavailable.
func IsTransportUnavailable(err error) bool {
	return errors.Is(err, ErrTransportUnavailable)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
