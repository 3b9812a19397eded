package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrInvalidConfig indicates invalid configuration (aborts the run)
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnreadable indicates a file whose metadata could not be read
	ErrUnreadable = errors.New("metadata unreadable")

	// ErrConflict indicates a destination file conflict
	ErrConflict = errors.New("destination conflict")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInterrupted indicates the run was cancelled by the user
	ErrInterrupted = errors.New("interrupted")
)
