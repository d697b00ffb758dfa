package publish

import "errors"

// ErrTickInProgress is returned when a tick starts while another is still running
var ErrTickInProgress = errors.New("publish tick already in progress")

// Skip reasons for rows left in ready_to_publish
const (
	SkipBudget          = "tick budget exhausted"
	SkipBreakerOpen     = "platform circuit open"
	SkipLoginFailed     = "login failed"
	SkipPersonaDisabled = "persona disabled"
)
