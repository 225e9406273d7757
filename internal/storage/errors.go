package storage

import "errors"

// Storage errors for the append-only ledger stores.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// whose id or idempotency key already exists.
	ErrDuplicateKey = errors.New("duplicate key: ledger records are append-only")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when a status update would
	// regress a hold or leave a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)
