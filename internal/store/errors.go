package store

import "fmt"

// RangeError represents a malformed A1 range
type RangeError struct {
	Range   string
	Message string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range %q: %s", e.Range, e.Message)
}

// BackendError represents a failure inside a storage backend
type BackendError struct {
	Backend string
	Op      string
	Sheet   string
	Cause   error
}

func (e *BackendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s %s: %v", e.Backend, e.Op, e.Sheet, e.Cause)
	}
	return fmt.Sprintf("%s %s %s failed", e.Backend, e.Op, e.Sheet)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}
