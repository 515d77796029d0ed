package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is the sentinel for a missing project/feedback/cluster
	// referenced by a maintenance operation. Surfaced to the caller, no retry.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// TransportError wraps a network/HTTP failure talking to an external
// provider. Retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError means the model returned output that does not conform to the
// expected contract. Retryable up to the pipeline bound, then terminal.
type ParseError struct {
	Op  string
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %s", e.Op, e.Msg)
}

// ValidationError means a malformed inbound event. Not retried; logged and
// dropped.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Msg)
}

// LimitError means a vendor rate limit was hit. The job is requeued with
// delay rather than failed.
type LimitError struct {
	Class      string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit hit for %s (retry after %s)", e.Class, e.RetryAfter)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsLimit(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}
