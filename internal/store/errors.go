package store

import "errors"

var (
	// ErrNotFound is returned when the machine or subscription does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write found the machine in another state.
	ErrConflict = errors.New("machine not in expected state")
)
