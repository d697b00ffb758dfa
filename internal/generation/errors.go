package generation

import "fmt"

// Failure is a work item whose generation exhausted its retries. It is recorded on
// the row rather than raised.
type Failure struct {
	WorkID   string
	Attempts int
	// Timeout is set when the last cause was a per-call deadline
	Timeout bool
	Cause   error
}

func (f *Failure) Error() string {
	kind := "failed"
	if f.Timeout {
		kind = "timed out"
	}
	return fmt.Sprintf("generation for %s %s after %d attempt(s): %v", f.WorkID, kind, f.Attempts, f.Cause)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// QualityError is generated content that failed a quality gate
type QualityError struct {
	Message string
}

func (e *QualityError) Error() string {
	return "quality gate: " + e.Message
}
