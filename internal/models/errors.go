package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by registry operations on unknown webhook or
// delivery IDs.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed registry input before anything is
// persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
