// Package repository holds the storage errors shared by every repository
// implementation.
package repository

import "errors"

var (
	// ErrNotFound is returned when a requested row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a row with the same key or idempotency
	// token already exists.
	ErrConflict = errors.New("conflict: row already exists")

	// ErrForeignKeyViolation is returned when a referenced template or audit
	// is missing.
	ErrForeignKeyViolation = errors.New("foreign key violation")
)
