package stream

import (
	"errors"
	"fmt"
)

var (
	ErrRetriesExhausted = errors.New("stream retries exhausted")
	ErrTimedOut         = errors.New("response timed out")
)

// StatusError reports a non-2xx response from the stream endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether reconnecting could succeed. Client errors are
// final except 429.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// StreamError is the terminal failure of a stream, preserving how many
// frames were delivered before it.
type StreamError struct {
	Delivered int
	Attempts  int
	Err       error
}

func (e *StreamError) Error() string {
	if e.Delivered > 0 {
		return fmt.Sprintf("stream error after %d event(s), %d attempt(s): %v", e.Delivered, e.Attempts, e.Err)
	}
	return fmt.Sprintf("stream error (%d attempt(s)): %v", e.Attempts, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
