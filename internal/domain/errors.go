package domain

import (
	"errors"
	"fmt"
)

// Error categories
var (
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")
)

// Domain errors
var (
	ErrInvalidPayload    = fmt.Errorf("%w: payload is not valid stats JSON", ErrValidation)
	ErrMissingPlayerName = fmt.Errorf("%w: player_name is required", ErrValidation)
	ErrAccountNotFound   = fmt.Errorf("account %w", ErrNotFound)
	ErrInternalError     = errors.New("internal server error")
)

// StorageError wraps a failure of the persistence layer
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err as a StorageError for the given operation
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports StorageError as matching ErrStorage
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// IsValidationError checks if an error was caused by bad client input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
