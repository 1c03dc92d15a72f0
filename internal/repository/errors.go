package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates the write collided with an existing record,
	// such as a duplicate email on insert.
	ErrConflict = errors.New("repository: conflict")
)
