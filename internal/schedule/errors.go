package schedule

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for an unknown job id
var ErrNotFound = errors.New("schedule job not found")

// ValidationError is a rejected create request
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid schedule job: %s: %s", e.Field, e.Message)
	}
	return "invalid schedule job: " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}
