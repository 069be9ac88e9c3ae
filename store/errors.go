package store

import "errors"

var (
	// ErrNotFound is returned when an entity doesn't exist or is deleted (has TTL <= now).
	ErrNotFound = errors.New("twine: entity not found")

	// ErrParentNotFound is returned when a credential's customer doesn't exist or is deleted.
	ErrParentNotFound = errors.New("twine: parent entity not found")

	// ErrAlreadyExists is returned when attempting to create an entity with an existing ID.
	ErrAlreadyExists = errors.New("twine: entity already exists")

	// ErrHasChildren is returned when deleting a customer whose credential is still live.
	ErrHasChildren = errors.New("twine: entity has active children")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("twine: entity was modified concurrently")

	// ErrKeyMismatch is returned when a credential's ID is empty or differs from its customer's ID.
	ErrKeyMismatch = errors.New("twine: credential id must equal customer id")
)
