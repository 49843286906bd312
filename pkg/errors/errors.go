package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidation
	ErrDelivery
	ErrInternal
)

// NotFound signals a missing Sequence or Invoice. It aborts the whole
// operation it occurs in.
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

// Validation signals malformed input, rejected before any side effect.
func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Err:     err,
	}
}

// Delivery wraps a mail sender failure or timeout. It drives the
// retry/reschedule state machine and is never fatal to a dispatch pass.
func Delivery(err error) *AppError {
	return &AppError{
		Code:    ErrDelivery,
		Message: "delivery failed",
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal error",
		Err:     err,
	}
}

// IsNotFound reports whether err carries the ErrNotFound code.
func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound)
}

// IsValidation reports whether err carries the ErrValidation code.
func IsValidation(err error) bool {
	return hasCode(err, ErrValidation)
}

func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
