package types

import (
	"strings"
	"time"
	"unicode"
)

// PostStatus is the ledger state of a work item
type PostStatus string

// PostStatus constants
const (
	StatusPendingGeneration PostStatus = "pending_generation"
	StatusReadyToPublish    PostStatus = "ready_to_publish"
	StatusPublished         PostStatus = "published"
	StatusGenerationFailed  PostStatus = "generation_failed"
	StatusPublishFailed     PostStatus = "publish_failed"
	StatusDeleted           PostStatus = "deleted"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []PostStatus{
	StatusPendingGeneration,
	StatusReadyToPublish,
	StatusPublished,
	StatusGenerationFailed,
	StatusPublishFailed,
	StatusDeleted,
}

// IsValid reports whether s is a known status
func (s PostStatus) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the automated pipeline never moves s again
func (s PostStatus) IsTerminal() bool {
	switch s {
	case StatusPublished, StatusGenerationFailed, StatusPublishFailed, StatusDeleted:
		return true
	}
	return false
}

// Review flags set on records that need a human look
const (
	ReviewFlagDuplicateTitle = "duplicate_title"
	ReviewFlagQualityGate    = "quality_gate"
)

// PostRecord is the mutable lifecycle row of one work item
type PostRecord struct {
	WorkID             string     `json:"work_id"`
	TopicID            string     `json:"topic_id"`
	PersonaSerial      string     `json:"persona_serial"`
	Status             PostStatus `json:"status"`
	Title              string     `json:"title,omitempty"`
	Body               string     `json:"body,omitempty"`
	GenerationAttempts int        `json:"generation_attempts"`
	MatchScore         float64    `json:"match_score"`
	ReviewFlag         string     `json:"review_flag,omitempty"`
	ScheduledAt        time.Time  `json:"scheduled_at,omitempty"`
	PublishedAt        *time.Time `json:"published_at,omitempty"`
	PlatformPostID     string     `json:"platform_post_id,omitempty"`
	LastError          string     `json:"last_error,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// NormalizeTitle folds case and collapses whitespace so near-identical titles compare equal
func NormalizeTitle(title string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(title), unicode.IsSpace), " ")
}
