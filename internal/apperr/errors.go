// Package apperr holds the error taxonomy shared by the storage engine and its callers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrMigrationFailed     = errors.New("migration failed")
	ErrAllocationExhausted = errors.New("no free file name")
	ErrCannotDeleteRoot    = errors.New("cannot delete root page")
	ErrNameCollision       = errors.New("name already exists")
	ErrInvalidState        = errors.New("invalid metadata state transition")
	ErrReadOnly            = errors.New("read-only")
	ErrConflict            = errors.New("conflict")
)

// ReadAccessError wraps an I/O or driver failure while reading.
type ReadAccessError struct {
	Op  string
	Err error
}

func (e *ReadAccessError) Error() string {
	return fmt.Sprintf("read access: %s: %v", e.Op, e.Err)
}

func (e *ReadAccessError) Unwrap() error { return e.Err }

// WriteAccessError wraps an I/O or driver failure while writing.
type WriteAccessError struct {
	Op  string
	Err error
}

func (e *WriteAccessError) Error() string {
	return fmt.Sprintf("write access: %s: %v", e.Op, e.Err)
}

func (e *WriteAccessError) Unwrap() error { return e.Err }

// Read wraps err as a ReadAccessError unless it is nil or already typed.
func Read(op string, err error) error {
	if err == nil || passThrough(err) {
		return err
	}
	return &ReadAccessError{Op: op, Err: err}
}

// Write wraps err as a WriteAccessError unless it is nil or already typed.
func Write(op string, err error) error {
	if err == nil || passThrough(err) {
		return err
	}
	return &WriteAccessError{Op: op, Err: err}
}

func passThrough(err error) bool {
	var re *ReadAccessError
	var we *WriteAccessError
	return errors.As(err, &re) || errors.As(err, &we) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrReadOnly) ||
		errors.Is(err, ErrAllocationExhausted)
}
