package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrTransient indicates a temporary error that should be retried
	ErrTransient = errors.New("transient error")

	// ErrPermanent indicates a permanent error that should not be retried
	ErrPermanent = errors.New("permanent error")

	// ErrInvalidRequest indicates a malformed or empty request
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidStateTransition indicates a lifecycle transition that is not allowed
	// or whose fields failed validation
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNotFound indicates a referenced record does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates authentication failure
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the user lacks the required grant
	ErrForbidden = errors.New("forbidden")

	// ErrRemediationInProgress indicates the remediation lock on a finding is held
	ErrRemediationInProgress = errors.New("remediation in progress")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("timeout")
)

// TransientError wraps an error to mark it as transient (retryable)
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient error: %v", e.Cause)
	}
	return "transient error"
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransient creates a new transient error
func NewTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Cause: err}
}

// NewTransientf creates a new transient error with formatting
func NewTransientf(format string, args ...interface{}) error {
	return &TransientError{Cause: fmt.Errorf(format, args...)}
}

// PermanentError wraps an error to mark it as permanent (not retryable)
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("permanent error: %v", e.Cause)
	}
	return "permanent error"
}

func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// NewPermanent creates a new permanent error
func NewPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Cause: err}
}

// NewPermanentf creates a new permanent error with formatting
func NewPermanentf(format string, args ...interface{}) error {
	return &PermanentError{Cause: fmt.Errorf(format, args...)}
}

// InvalidRequestf returns an error matching ErrInvalidRequest.
func InvalidRequestf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// NotFoundf returns an error matching ErrNotFound.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Forbiddenf returns an error matching ErrForbidden.
func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// IsTransient checks if an error is transient using errors.As
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	if errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrRemediationInProgress) {
		return false
	}

	if errors.Is(err, ErrTimeout) {
		return true
	}

	// Default to non-transient for safety (don't retry unknown errors)
	return false
}

// IsPermanent checks if an error is permanent (not retryable)
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

// ErrorClass is the coarse category a caller reacts to.
type ErrorClass int

const (
	ErrorClassUnknown ErrorClass = iota
	ErrorClassTransient
	ErrorClassPermanent
	ErrorClassClient
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassPermanent:
		return "permanent"
	case ErrorClassClient:
		return "client"
	default:
		return "unknown"
	}
}

// ClassifyError buckets err. Client errors are the request-level sentinels
// (invalid request, invalid transition, not found, forbidden, in progress).
func ClassifyError(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorClassUnknown
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrRemediationInProgress):
		return ErrorClassClient
	case IsTransient(err):
		return ErrorClassTransient
	case IsPermanent(err):
		return ErrorClassPermanent
	default:
		return ErrorClassUnknown
	}
}

// Is, As and New re-export the standard helpers so callers importing this
// package under the name errors keep working.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
