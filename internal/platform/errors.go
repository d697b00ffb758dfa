package platform

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is returned when the platform rejects a session token
var ErrSessionExpired = errors.New("platform session expired")

// PublishError is a failed Platform API call
type PublishError struct {
	// Op is "login" or "publish"
	Op         string
	StatusCode int
	// Timeout is set when the call hit its deadline
	Timeout bool
	Message string
	Cause   error
}

func (e *PublishError) Error() string {
	msg := e.Message
	if e.Timeout {
		msg = "timed out"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("platform %s: %s: %v", e.Op, msg, e.Cause)
	}
	return fmt.Sprintf("platform %s: %s", e.Op, msg)
}

func (e *PublishError) Unwrap() error {
	return e.Cause
}

// CredentialsError is a persona credential cell that cannot be used to log in
type CredentialsError struct {
	Message string
}

func (e *CredentialsError) Error() string {
	return "invalid credentials: " + e.Message
}
