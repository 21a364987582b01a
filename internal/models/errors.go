package models

import "fmt"

// ValidationError represents a precondition violation: malformed
// config, impossible trip state, bad request input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrInvalidInput creates a validation error.
func ErrInvalidInput(message string) error {
	return &ValidationError{Message: message}
}

// NotFoundError is returned when a referenced record no longer exists.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ErrNotFound creates a not-found error.
func ErrNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}
