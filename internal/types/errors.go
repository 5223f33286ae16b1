package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrTransient marks a remote failure as retryable (rate limit or
// server-side error class). Wrap it to signal the retry policy.
var ErrTransient = errors.New("transient remote error")

// ValidationError rejects malformed input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CircuitOpenError signals the breaker is protecting a degraded
// dependency. Always immediately fatal to the caller's attempt.
type CircuitOpenError struct {
	Name    string
	RetryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s until %s", e.Name, e.RetryAt.Format(time.RFC3339))
}

// RemoteCallError is the terminal failure of a wrapped remote call,
// carrying the transient/permanent classification.
type RemoteCallError struct {
	Name      string
	Transient bool
	Err       error
}

func (e *RemoteCallError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("remote call %s failed (%s): %v", e.Name, class, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// StorageError wraps an underlying persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ParseError rejects a classifier payload that does not match the
// decision schema.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decision parse failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decision parse failed: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
