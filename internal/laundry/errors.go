package laundry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown machine id.
	ErrNotFound = errors.New("machine not found")

	// ErrConflict is returned when a start loses to another start or the machine is not available.
	ErrConflict = errors.New("machine unavailable")

	// ErrForbidden is returned when the session may not perform the operation.
	ErrForbidden = errors.New("operation not permitted")

	// ErrPersistence wraps storage failures. Callers see only this message.
	ErrPersistence = errors.New("storage error")
)

// ValidationError reports a rejected input field before any write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
