package ai

import (
	"errors"
	"fmt"
)

// TransientError marks a failure that may succeed on retry: rate limits,
// server errors, network failures and per-call timeouts.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that will not change on retry, such as an
// invalid request or missing credentials.
type FatalError struct {
	StatusCode int
	Err        error
}

func (e *FatalError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fatal (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func NewTransientError(status int, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{StatusCode: status, Err: err}
}

func NewFatalError(status int, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{StatusCode: status, Err: err}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// ClassifyStatus wraps err according to an HTTP status code: 408, 425, 429
// and 5xx are transient, other 4xx fatal. Anything else is left unchanged.
func ClassifyStatus(status int, err error) error {
	switch {
	case status == 408 || status == 425 || status == 429 || status >= 500:
		return NewTransientError(status, err)
	case status >= 400:
		return NewFatalError(status, err)
	}
	return err
}
