package store

import "errors"

var (
	// ErrNotFound indicates no record matched the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates an insert was rejected by a uniqueness
	// constraint. For the lock store this means the lock is already held.
	ErrDuplicateKey = errors.New("duplicate key")
)
