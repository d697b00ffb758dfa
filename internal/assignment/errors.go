package assignment

import (
	"fmt"
	"strings"
)

// ConflictError reports selected (topic, persona) pairs that already exist in the ledger.
// Assign still returns the non-conflicting assignments alongside it.
type ConflictError struct {
	TopicID        string
	PersonaSerials []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("assignment conflict for topic %s: personas %s already assigned",
		e.TopicID, strings.Join(e.PersonaSerials, ", "))
}
