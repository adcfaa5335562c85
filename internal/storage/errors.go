package storage

import "errors"

// Errors shared by every ReceiptStore and AccountFixtureStore.
var (
	// ErrNotFound reports that no receipt or fixture has the requested key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey reports a second insert for the same signature or
	// address. Receipts and fixtures are never updated in place.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput reports a nil record or an empty key.
	ErrInvalidInput = errors.New("invalid input")
)
