package notify

import (
	"errors"
	"fmt"
)

// ErrValidation is the sentinel all ValidationErrors match via errors.Is.
var ErrValidation = errors.New("validation failed")

// ErrNotFound is returned when a delivery record does not exist or does not
// belong to the calling user.
var ErrNotFound = errors.New("not found")

// ValidationError rejects content before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
