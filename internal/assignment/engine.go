// Package assignment scores personas against a classified topic and selects a bounded,
// duplicate-free set of them.
package assignment

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Score weights
const (
	WeightPersonaTag  = 1.0
	WeightIndustryTag = 1.0
	WeightEventTag    = 0.5
)

// QuotaLookup reports how many assignments a persona may still receive today,
// given its configured daily limit. Historical bookkeeping lives behind it.
type QuotaLookup interface {
	Remaining(personaSerial string, limit int) int
}

// ExistingLookup reports persona serials already assigned to a topic
type ExistingLookup interface {
	AssignedPersonas(topicID string) []string
}

// Engine assigns topics to personas. One Engine serves one run: its same-run counter
// is what keeps personas under their daily ceiling across topics of the run.
type Engine struct {
	quota    QuotaLookup
	existing ExistingLookup
	logger   zerolog.Logger
	now      func() time.Time

	used map[string]int
}

// Option configures an Engine
type Option func(*Engine)

// WithQuota sets the historical remaining-quota lookup
func WithQuota(q QuotaLookup) Option {
	return func(e *Engine) { e.quota = q }
}

// WithExisting sets the lookup of assignments already in the ledger
func WithExisting(l ExistingLookup) Option {
	return func(e *Engine) { e.existing = l }
}

// WithClock overrides the creation timestamp source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine for one run
func NewEngine(logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger: logger.With().Str("component", "assignment").Logger(),
		now:    time.Now,
		used:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type candidate struct {
	persona types.PersonaProfile
	score   float64
}

// Assign selects at most topicCap personas for topic. Existing ledger assignments for the
// topic count toward the cap. Personas with a non-positive score are never selected, so a
// topic may receive fewer assignments than the cap, including none. Pairs that already
// exist never take a slot; those that would have been selected are reported through
// *ConflictError next to the fresh assignments.
func (e *Engine) Assign(topic types.Topic, personas []types.PersonaProfile, topicCap int) ([]types.Assignment, error) {
	assigned := make(map[string]bool)
	if e.existing != nil {
		for _, serial := range e.existing.AssignedPersonas(topic.TopicID) {
			assigned[serial] = true
		}
	}

	slots := topicCap - len(assigned)
	if slots <= 0 {
		e.logger.Debug().Str("topic_id", topic.TopicID).Int("cap", topicCap).Msg("topic already at assignment cap")
		return nil, nil
	}

	seen := make(map[string]bool)
	var candidates []candidate
	for _, p := range personas {
		if !p.Enabled || seen[p.Serial] {
			continue
		}
		seen[p.Serial] = true
		if e.remaining(p) <= 0 {
			continue
		}
		score, ok := Score(topic.Tags, p)
		if !ok || score <= 0 {
			continue
		}
		candidates = append(candidates, candidate{persona: p, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].persona.Serial < candidates[j].persona.Serial
	})

	// an existing pair that ranks inside the open slots is a conflict, and the slot
	// goes to the next fresh candidate
	var conflicts []string
	fresh := make([]candidate, 0, len(candidates))
	for i, c := range candidates {
		if assigned[c.persona.Serial] {
			if i < slots {
				conflicts = append(conflicts, c.persona.Serial)
			}
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) > slots {
		fresh = fresh[:slots]
	}

	now := e.now()
	var out []types.Assignment
	for _, c := range fresh {
		out = append(out, types.NewAssignment(topic.TopicID, c.persona.Serial, c.score, now))
		e.used[c.persona.Serial]++
	}

	e.logger.Debug().
		Str("topic_id", topic.TopicID).
		Int("candidates", len(candidates)).
		Int("assigned", len(out)).
		Msg("assigned topic")

	if len(conflicts) > 0 {
		return out, &ConflictError{TopicID: topic.TopicID, PersonaSerials: conflicts}
	}
	return out, nil
}

// UsedThisRun returns how many assignments persona received from this engine
func (e *Engine) UsedThisRun(serial string) int {
	return e.used[serial]
}

func (e *Engine) remaining(p types.PersonaProfile) int {
	left := p.MaxDailyAssignments
	if e.quota != nil {
		left = e.quota.Remaining(p.Serial, p.MaxDailyAssignments)
	}
	return left - e.used[p.Serial]
}

// Score computes the match score of persona p for tags. ok is false when any topic tag
// is in the persona's exclusions, which disqualifies it regardless of score.
func Score(tags types.TagSet, p types.PersonaProfile) (score float64, ok bool) {
	if p.Excludes(tags.All()) {
		return 0, false
	}
	prefs := make(map[string]bool, len(p.PreferenceTags))
	for _, t := range p.PreferenceTags {
		prefs[types.NormalizeTag(t)] = true
	}
	score += WeightPersonaTag * float64(overlap(prefs, tags.PersonaTags))
	score += WeightIndustryTag * float64(overlap(prefs, tags.IndustryTags))
	score += WeightEventTag * float64(overlap(prefs, tags.EventTags))
	return score, true
}

func overlap(prefs map[string]bool, tags []string) int {
	n := 0
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = types.NormalizeTag(t)
		if prefs[t] && !seen[t] {
			n++
		}
		seen[t] = true
	}
	return n
}
