package fetch

import (
	"errors"
	"fmt"
)

// ErrorKind separates failures that are worth retrying from those that
// are not.
type ErrorKind string

// Supported failure kinds.
const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// Error is returned by Client.Fetch once retries are exhausted or a
// non-retryable failure occurs.
type Error struct {
	Kind     ErrorKind
	URL      string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure was classified as transient.
func (e *Error) Temporary() bool {
	return e.Kind == KindTransient
}

// IsPermanent reports whether err is a fetch error that should not be
// retried by callers.
func IsPermanent(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindPermanent
}
