// Package apperror defines the error taxonomy shared by every layer.
//
// Repositories and services return *AppError values that wrap one of the
// sentinel errors below. Callers branch with errors.Is against the sentinel;
// the HTTP layer maps each sentinel to a status code in one place.
//
//	ErrValidation   → malformed input, nothing was touched
//	ErrNotFound     → the referenced game, user, group or event does not exist
//	ErrConflict     → the write would duplicate existing state
//	ErrForbidden    → the principal may not perform the operation
//	ErrUnauthorized → no principal at all
//	ErrStorage      → the store failed or timed out; the transaction rolled back
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrStorage      = errors.New("storage error")
)

type AppError struct {
	Err     error  // sentinel category
	Message string // human-readable error message
	Field   string // optional: field causing the error
	Cause   error  // optional: underlying failure, never shown to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the category and the cause, so errors.Is matches
// ErrStorage as well as context.DeadlineExceeded on a timed-out call.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %v", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned when an operation requiring a principal got none.
func Unauthorized() *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: "valid authentication required",
	}
}

// Storage wraps a driver, transaction or timeout failure. op names the
// operation for logs; the client only ever sees the generic message.
func Storage(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: fmt.Sprintf("%s: storage unavailable", op),
		Cause:   cause,
	}
}

// IsApp reports whether err already carries a category.
func IsApp(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}
