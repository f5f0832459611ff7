package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no object exists at the key.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for keys rejected by ValidateKey.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrTooLarge is returned when an object exceeds MaxBatchFileSize.
	ErrTooLarge = errors.New("object exceeds maximum batch file size")

	// ErrAccessDenied is returned when the provider refuses the credentials for the object.
	ErrAccessDenied = errors.New("access denied")
)

// ObjectError records the operation and key of a failed storage call.
type ObjectError struct {
	Op  string // "put", "get" or "delete"
	Key string
	Err error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidKey reports whether err means the key was rejected.
func IsInvalidKey(err error) bool {
	return errors.Is(err, ErrInvalidKey)
}

// IsTooLarge reports whether err means the object is over MaxBatchFileSize.
func IsTooLarge(err error) bool {
	return errors.Is(err, ErrTooLarge)
}

// IsAccessDenied reports whether err means the provider denied access.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
