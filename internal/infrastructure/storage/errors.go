package storage

import "errors"

var (
	// ErrNoDatabase is returned when the repository has no connection.
	ErrNoDatabase = errors.New("database is not configured")
	// ErrRunNotFound is returned when finishing a run that was never created.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidItem marks an item that cannot be stored as-is.
	ErrInvalidItem = errors.New("invalid item")
)
