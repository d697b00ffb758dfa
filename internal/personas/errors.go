// Package personas loads persona profiles from the personas sheet and serves them for one run.
package personas

import "fmt"

// ConfigurationError represents a personas sheet that cannot be used. It is fatal for a run.
type ConfigurationError struct {
	Sheet   string
	Row     int
	Column  string
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	loc := e.Sheet
	if e.Row > 0 {
		loc = fmt.Sprintf("%s row %d", loc, e.Row)
	}
	if e.Column != "" {
		loc = fmt.Sprintf("%s column %q", loc, e.Column)
	}
	if e.Cause != nil {
		return fmt.Sprintf("persona configuration error (%s): %s: %v", loc, e.Message, e.Cause)
	}
	return fmt.Sprintf("persona configuration error (%s): %s", loc, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NotFoundError indicates no loaded persona has the serial
type NotFoundError struct {
	Serial string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("persona not found: %s", e.Serial)
}
