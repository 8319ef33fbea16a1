package model

import (
	"errors"
	"fmt"
)

// Domain errors. Handlers map them to HTTP status codes with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("requested quantity is not available")
	ErrForbidden         = errors.New("not authorized")
	ErrUnauthenticated   = errors.New("not authenticated")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports a malformed or missing field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid returns a *ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
