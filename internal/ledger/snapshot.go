package ledger

import (
	"context"
	"time"

	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Snapshot is a point-in-time view of the ledger used by the assignment engine.
// It answers "who already has this topic" and "how many assignments did this persona get today".
type Snapshot struct {
	byTopic    map[string][]string
	todayCount map[string]int
}

// Snapshot reads the ledger once. Records created on the same calendar day as now
// (in now's location) count toward the daily quota; deleted records do not.
func (l *Ledger) Snapshot(ctx context.Context, now time.Time) (*Snapshot, error) {
	records, err := l.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	return NewSnapshot(records, now), nil
}

// NewSnapshot builds a Snapshot from records
func NewSnapshot(records []types.PostRecord, now time.Time) *Snapshot {
	loc := now.Location()
	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	s := &Snapshot{byTopic: make(map[string][]string), todayCount: make(map[string]int)}
	for _, r := range records {
		s.byTopic[r.TopicID] = append(s.byTopic[r.TopicID], r.PersonaSerial)
		if r.Status == types.StatusDeleted {
			continue
		}
		created := r.CreatedAt.In(loc)
		if !created.Before(dayStart) && created.Before(dayEnd) {
			s.todayCount[r.PersonaSerial]++
		}
	}
	return s
}

// AssignedPersonas implements assignment.ExistingLookup
func (s *Snapshot) AssignedPersonas(topicID string) []string {
	return s.byTopic[topicID]
}

// Remaining implements assignment.QuotaLookup
func (s *Snapshot) Remaining(personaSerial string, limit int) int {
	left := limit - s.todayCount[personaSerial]
	if left < 0 {
		return 0
	}
	return left
}
