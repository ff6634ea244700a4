package types

import "errors"

// Sentinel errors for reachpoint operations.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate indicates a uniqueness constraint was violated
	// (customer email, segment name per creator, user email).
	ErrDuplicate = errors.New("duplicate document")

	// ErrInvalidID indicates a malformed entity identifier.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrInvalidRule indicates a rule tree that fails structural validation.
	ErrInvalidRule = errors.New("invalid rule tree")

	// ErrEmptyPatch indicates a patch with no replacement document, no
	// field sets and no increments.
	ErrEmptyPatch = errors.New("empty patch")

	// ErrQueueFull indicates the write coalescer's bounded queue is at
	// capacity and the enqueue was rejected.
	ErrQueueFull = errors.New("write queue full")

	// ErrStopped indicates an enqueue after the coalescer began shutdown.
	ErrStopped = errors.New("coalescer stopped")
)
