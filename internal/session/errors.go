package session

import "fmt"

// ErrorKind classifies session failures so callers can decide between retry,
// degraded fallback and hard stop.
type ErrorKind string

const (
	ErrConnection ErrorKind = "connection"
	ErrAudio      ErrorKind = "audio"
	ErrSession    ErrorKind = "session"
	ErrValidation ErrorKind = "validation"
)

// Error wraps an underlying failure with its kind and the operation that
// produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
