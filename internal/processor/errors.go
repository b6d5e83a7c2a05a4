package processor

import (
	"errors"
	"fmt"
)

// Error is a failure returned by the payment processor. Transient marks
// retry eligibility as a property of the error itself; callers must never
// decide retries by matching message strings.
type Error struct {
	Code      string
	Message   string
	Transient bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("processor %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("processor %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newTransientError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Transient: true, Cause: cause}
}

func newPermanentError(code, message string) *Error {
	return &Error{Code: code, Message: message, Transient: false}
}

// IsTransient reports whether err is a retryable processor failure.
func IsTransient(err error) bool {
	var procErr *Error
	if errors.As(err, &procErr) {
		return procErr.Transient
	}
	return false
}

// AsProcessorError unwraps err into a processor Error if possible.
func AsProcessorError(err error) (*Error, bool) {
	var procErr *Error
	if errors.As(err, &procErr) {
		return procErr, true
	}
	return nil, false
}
