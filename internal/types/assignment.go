package types

import (
	"fmt"
	"strings"
	"time"
)

// WorkIDSeparator joins topic_id and persona serial. It never occurs in UUIDs or feed ids.
const WorkIDSeparator = "::"

// WorkID derives the unit-of-work key for a topic and persona
func WorkID(topicID, personaSerial string) string {
	return topicID + WorkIDSeparator + personaSerial
}

// ParseWorkID splits a work id back into topic id and persona serial
func ParseWorkID(workID string) (topicID, personaSerial string, err error) {
	idx := strings.LastIndex(workID, WorkIDSeparator)
	if idx <= 0 || idx+len(WorkIDSeparator) >= len(workID) {
		return "", "", fmt.Errorf("malformed work id %q", workID)
	}
	return workID[:idx], workID[idx+len(WorkIDSeparator):], nil
}

// Assignment pairs one topic with one persona
type Assignment struct {
	WorkID        string    `json:"work_id"`
	TopicID       string    `json:"topic_id"`
	PersonaSerial string    `json:"persona_serial"`
	MatchScore    float64   `json:"match_score"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewAssignment builds an assignment with its derived work id
func NewAssignment(topicID, personaSerial string, score float64, now time.Time) Assignment {
	return Assignment{
		WorkID:        WorkID(topicID, personaSerial),
		TopicID:       topicID,
		PersonaSerial: personaSerial,
		MatchScore:    score,
		CreatedAt:     now,
	}
}
