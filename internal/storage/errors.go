// internal/storage/errors.go
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable wraps any failure of the backing store.
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("store conflict")
	// ErrNotFound is returned when a row to update or delete does not exist.
	ErrNotFound = errors.New("record not found")
)

// Unavailable wraps err so that it matches ErrUnavailable while keeping the cause.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
