package ledger

import (
	"strconv"
	"time"

	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Column names of the posts sheet
const (
	ColWorkID             = "work_id"
	ColTopicID            = "topic_id"
	ColPersonaSerial      = "persona_serial"
	ColStatus             = "status"
	ColTitle              = "title"
	ColBody               = "body"
	ColGenerationAttempts = "generation_attempts"
	ColMatchScore         = "match_score"
	ColReviewFlag         = "review_flag"
	ColScheduledAt        = "scheduled_at"
	ColPublishedAt        = "published_at"
	ColPlatformPostID     = "platform_post_id"
	ColLastError          = "last_error"
	ColCreatedAt          = "created_at"
	ColUpdatedAt          = "updated_at"
)

// Columns is the posts sheet layout written to a fresh sheet
var Columns = []string{
	ColWorkID, ColTopicID, ColPersonaSerial, ColStatus, ColTitle, ColBody,
	ColGenerationAttempts, ColMatchScore, ColReviewFlag, ColScheduledAt, ColPublishedAt,
	ColPlatformPostID, ColLastError, ColCreatedAt, ColUpdatedAt,
}

func encodeRecord(h store.Header, r types.PostRecord) []string {
	values := map[string]string{
		ColWorkID:             r.WorkID,
		ColTopicID:            r.TopicID,
		ColPersonaSerial:      r.PersonaSerial,
		ColStatus:             string(r.Status),
		ColTitle:              r.Title,
		ColBody:               r.Body,
		ColGenerationAttempts: strconv.Itoa(r.GenerationAttempts),
		ColMatchScore:         strconv.FormatFloat(r.MatchScore, 'f', -1, 64),
		ColReviewFlag:         r.ReviewFlag,
		ColScheduledAt:        formatTime(r.ScheduledAt),
		ColPlatformPostID:     r.PlatformPostID,
		ColLastError:          r.LastError,
		ColCreatedAt:          formatTime(r.CreatedAt),
		ColUpdatedAt:          formatTime(r.UpdatedAt),
	}
	if r.PublishedAt != nil {
		values[ColPublishedAt] = formatTime(*r.PublishedAt)
	}
	return h.Encode(values)
}

func decodeRecord(h store.Header, rowNum int, row []string) (types.PostRecord, error) {
	r := types.PostRecord{
		WorkID:         h.Get(row, ColWorkID),
		TopicID:        h.Get(row, ColTopicID),
		PersonaSerial:  h.Get(row, ColPersonaSerial),
		Status:         types.PostStatus(h.Get(row, ColStatus)),
		Title:          h.Get(row, ColTitle),
		Body:           h.Get(row, ColBody),
		ReviewFlag:     h.Get(row, ColReviewFlag),
		PlatformPostID: h.Get(row, ColPlatformPostID),
		LastError:      h.Get(row, ColLastError),
	}
	if r.WorkID == "" {
		return r, &RowError{Row: rowNum, Message: "missing work_id"}
	}
	if !r.Status.IsValid() {
		return r, &RowError{Row: rowNum, Message: "unknown status " + strconv.Quote(string(r.Status))}
	}
	if r.TopicID == "" || r.PersonaSerial == "" {
		topicID, serial, err := types.ParseWorkID(r.WorkID)
		if err != nil {
			return r, &RowError{Row: rowNum, Message: "cannot derive topic and persona", Cause: err}
		}
		r.TopicID, r.PersonaSerial = topicID, serial
	}

	var err error
	if v := h.Get(row, ColGenerationAttempts); v != "" {
		if r.GenerationAttempts, err = strconv.Atoi(v); err != nil {
			return r, &RowError{Row: rowNum, Message: "bad generation_attempts", Cause: err}
		}
	}
	if v := h.Get(row, ColMatchScore); v != "" {
		if r.MatchScore, err = strconv.ParseFloat(v, 64); err != nil {
			return r, &RowError{Row: rowNum, Message: "bad match_score", Cause: err}
		}
	}
	if r.ScheduledAt, err = parseTime(h.Get(row, ColScheduledAt)); err != nil {
		return r, &RowError{Row: rowNum, Message: "bad scheduled_at", Cause: err}
	}
	if r.CreatedAt, err = parseTime(h.Get(row, ColCreatedAt)); err != nil {
		return r, &RowError{Row: rowNum, Message: "bad created_at", Cause: err}
	}
	if r.UpdatedAt, err = parseTime(h.Get(row, ColUpdatedAt)); err != nil {
		return r, &RowError{Row: rowNum, Message: "bad updated_at", Cause: err}
	}
	published, err := parseTime(h.Get(row, ColPublishedAt))
	if err != nil {
		return r, &RowError{Row: rowNum, Message: "bad published_at", Cause: err}
	}
	if !published.IsZero() {
		r.PublishedAt = &published
	}
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
