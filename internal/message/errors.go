package message

import (
	"errors"
	"fmt"
)

// Sentinel errors for message operations.
var (
	// ErrUnsupportedMethod indicates that the request method is not in the
	// supported set.
	ErrUnsupportedMethod = errors.New("unsupported request method")

	// ErrBodyRead indicates that draining a single-use body failed.
	ErrBodyRead = errors.New("body read failed")
)

// UnsupportedMethodError is returned when an inbound request carries a method
// outside the supported set. The exchange is terminal; no outbound call is
// attempted.
type UnsupportedMethodError struct {
	Method string
}

// Error implements the error interface.
func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported request method %q", e.Method)
}

// Is reports whether the target matches ErrUnsupportedMethod.
func (e *UnsupportedMethodError) Is(target error) bool {
	return target == ErrUnsupportedMethod
}

// BodyReadError is returned when draining a single-use body stream fails.
// No partial body is produced.
type BodyReadError struct {
	Cause error
}

// Error implements the error interface.
func (e *BodyReadError) Error() string {
	return fmt.Sprintf("body read failed: %v", e.Cause)
}

// Unwrap returns the underlying error.
func (e *BodyReadError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches ErrBodyRead.
func (e *BodyReadError) Is(target error) bool {
	return target == ErrBodyRead || errors.Is(e.Cause, target)
}

// IsUnsupportedMethod checks if an error indicates an unsupported method.
func IsUnsupportedMethod(err error) bool {
	return errors.Is(err, ErrUnsupportedMethod)
}

// IsBodyRead checks if an error indicates a body read failure.
func IsBodyRead(err error) bool {
	return errors.Is(err, ErrBodyRead)
}
