// Package errs contains sentinel errors shared by the repository, service and api layers.
package errs

import "errors"

var (
	// ErrNotFound indicates the entity does not exist or is not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint would be violated.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates a missing or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")
)
