package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentifier is returned before any query is built when an id,
	// label or relationship type cannot be used safely.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrNodeNotFound      = errors.New("node not found")
)

// TransientError marks a storage failure that may succeed when retried,
// such as a lost connection or a write conflict.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient storage error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err into a TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
