package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist or is
	// not owned by the requesting user.
	ErrNotFound = errors.New("record not found")

	// ErrEmailTaken is returned when a signup reuses an existing email.
	ErrEmailTaken = errors.New("email already registered")
)
