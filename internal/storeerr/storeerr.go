// Package storeerr classifies backing-store failures.
package storeerr

import (
	"errors"
	"fmt"
)

// TransientError wraps an I/O failure of the backing store. It is never retried here; the caller
// decides whether the single entity or operation is attempted again.
type TransientError struct {
	code string
	err  error
}

func (e *TransientError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation.reason code.
func (e *TransientError) Code() string {
	return e.code
}

// New wraps cause under operation.reason. A nil cause yields nil.
func New(operation, reason string, cause error) error {
	if cause == nil {
		return nil
	}
	var existing *TransientError
	if errors.As(cause, &existing) {
		return cause
	}
	return &TransientError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
