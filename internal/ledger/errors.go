package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// ErrNotFound indicates no ledger row has the work id
var ErrNotFound = errors.New("post record not found")

// TransitionError represents a status change the state machine forbids
type TransitionError struct {
	WorkID string
	From   types.PostStatus
	To     types.PostStatus
	Actor  Actor
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition for %s: %s -> %s (actor %s)", e.WorkID, e.From, e.To, e.Actor)
}

// DuplicateError lists work ids that already have a ledger row
type DuplicateError struct {
	WorkIDs []string
}

func (e *DuplicateError) Error() string {
	return "post record already exists: " + strings.Join(e.WorkIDs, ", ")
}

// RowError represents a ledger row that cannot be decoded
type RowError struct {
	Row     int
	Message string
	Cause   error
}

func (e *RowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ledger row %d: %s: %v", e.Row, e.Message, e.Cause)
	}
	return fmt.Sprintf("ledger row %d: %s", e.Row, e.Message)
}

func (e *RowError) Unwrap() error {
	return e.Cause
}
