// Package apperror defines the domain error taxonomy shared by every layer.
//
// Services and stores return *AppError values wrapping one of the kinds
// below. Only the HTTP handler layer decides which status code a kind
// maps to.
package apperror

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
)

var kinds = []error{ErrValidation, ErrUnauthenticated, ErrForbidden, ErrNotFound, ErrConflict}

// AppError is a domain failure whose Message is safe to show a client.
type AppError struct {
	Err     error  // one of the kinds above
	Message string // shown to the client as is
	Field   string // input field at fault, if any
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind err wraps, or nil for an error outside the
// taxonomy (a store failure, a bug).
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func newError(kind error, field, message string) *AppError {
	return &AppError{Err: kind, Message: message, Field: field}
}

func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, "", fmt.Sprintf("%s with given id %s not found", resource, id))
}

func ValidationFailed(field, message string) *AppError {
	return newError(ErrValidation, field, message)
}

// Conflict reports that a unique value is already taken, e.g. a signup
// email.
func Conflict(resource, field, value string) *AppError {
	return newError(ErrConflict, field, fmt.Sprintf("%s with %s %s already exists", resource, field, value))
}

// Forbidden is for a caller acting on something it does not own.
func Forbidden(message string) *AppError {
	return newError(ErrForbidden, "", message)
}

// Unauthenticated is for a credential that is missing, invalid or no
// longer resolves to a user.
func Unauthenticated(message string) *AppError {
	return newError(ErrUnauthenticated, "", message)
}
