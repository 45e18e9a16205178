package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by conditional creates when the key is taken.
	ErrAlreadyExists = errors.New("already exists")
)
