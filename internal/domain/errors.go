package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a structured enrichment result that failed its schema.
	ErrValidation = errors.New("enrichment result failed validation")
	// ErrItemNotFound is returned by item lookups for an unknown id.
	ErrItemNotFound = errors.New("item not found")
)

// ValidationError describes which field of a structured result was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match any validation failure with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
