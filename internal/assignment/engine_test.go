package assignment

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

type fixedQuota map[string]int

func (q fixedQuota) Remaining(serial string, limit int) int {
	if n, ok := q[serial]; ok {
		return n
	}
	return limit
}

type existingPairs map[string][]string

func (e existingPairs) AssignedPersonas(topicID string) []string {
	return e[topicID]
}

func persona(serial string, prefs ...string) types.PersonaProfile {
	return types.PersonaProfile{
		Serial:              serial,
		Enabled:             true,
		PreferenceTags:      prefs,
		MaxDailyAssignments: 5,
		Credentials:         "tok-" + serial,
	}
}

func serials(as []types.Assignment) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.PersonaSerial
	}
	return out
}

func TestAssign_ExcludedPersonaNeverSelected(t *testing.T) {
	topic := types.Topic{TopicID: "t1", Tags: types.TagSet{IndustryTags: []string{"semiconductor"}}}
	excluded := persona("100", "semiconductor")
	excluded.ExclusionTags = []string{"semiconductor"}
	pool := []types.PersonaProfile{excluded, persona("200", "semiconductor"), persona("300", "semiconductor")}

	got, err := NewEngine(zerolog.Nop()).Assign(topic, pool, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"200", "300"}, serials(got))
}

func TestAssign_CapAndTieBreakBySerial(t *testing.T) {
	topic := types.Topic{TopicID: "t1", Tags: types.TagSet{
		IndustryTags: []string{"semiconductor"},
		EventTags:    []string{"earnings"},
	}}
	pool := []types.PersonaProfile{
		persona("500", "semiconductor"),
		persona("400", "semiconductor"),
		persona("300", "semiconductor", "earnings"),
		persona("200", "semiconductor"),
		persona("100", "earnings"),
	}

	got, err := NewEngine(zerolog.Nop()).Assign(topic, pool, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"300", "200"}, serials(got))
	assert.Equal(t, 1.5, got[0].MatchScore)
	assert.Equal(t, "t1::300", got[0].WorkID)
}

func TestAssign_NoPaddingWithZeroScores(t *testing.T) {
	topic := types.Topic{TopicID: "t1", Tags: types.TagSet{IndustryTags: []string{"biotech"}}}
	pool := []types.PersonaProfile{persona("100", "biotech"), persona("200", "macro"), persona("300")}

	got, err := NewEngine(zerolog.Nop()).Assign(topic, pool, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, serials(got))
}

func TestAssign_EmptyTagSetIsZeroAssignmentsNotError(t *testing.T) {
	topic := types.Topic{TopicID: "t1"}
	got, err := NewEngine(zerolog.Nop()).Assign(topic, []types.PersonaProfile{persona("100", "macro")}, 3)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestAssign_DisabledAndDuplicatePersonasIgnored(t *testing.T) {
	topic := types.Topic{TopicID: "t1", Tags: types.TagSet{PersonaTags: []string{"technical"}}}
	disabled := persona("100", "technical")
	disabled.Enabled = false
	pool := []types.PersonaProfile{disabled, persona("200", "technical"), persona("200", "technical")}

	got, err := NewEngine(zerolog.Nop()).Assign(topic, pool, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"200"}, serials(got))
}

func TestAssign_SameRunCounterAndQuota(t *testing.T) {
	p := persona("100", "macro")
	p.MaxDailyAssignments = 2
	engine := NewEngine(zerolog.Nop(), WithQuota(fixedQuota{"100": 1}))

	first, err := engine.Assign(types.Topic{TopicID: "t1", Tags: types.TagSet{PersonaTags: []string{"macro"}}}, []types.PersonaProfile{p}, 3)
	require.NoError(t, err)
	assert.Len(t, first, 1)
	assert.Equal(t, 1, engine.UsedThisRun("100"))

	second, err := engine.Assign(types.Topic{TopicID: "t2", Tags: types.TagSet{PersonaTags: []string{"macro"}}}, []types.PersonaProfile{p}, 3)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestAssign_ExistingCountTowardCapAndConflict(t *testing.T) {
	topic := types.Topic{TopicID: "t1", Tags: types.TagSet{IndustryTags: []string{"ai"}}}
	pool := []types.PersonaProfile{persona("100", "ai"), persona("200", "ai"), persona("300", "ai")}

	t.Run("cap already reached", func(t *testing.T) {
		engine := NewEngine(zerolog.Nop(), WithExisting(existingPairs{"t1": {"900", "901"}}))
		got, err := engine.Assign(topic, pool, 2)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("selected pair already exists", func(t *testing.T) {
		engine := NewEngine(zerolog.Nop(), WithExisting(existingPairs{"t1": {"100"}}))
		got, err := engine.Assign(topic, pool, 3)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []string{"100"}, conflict.PersonaSerials)
		assert.Equal(t, []string{"200", "300"}, serials(got))
	})

	t.Run("top scorer already assigned does not cost a slot", func(t *testing.T) {
		top := persona("100", "ai", "semiconductor")
		ranked := types.Topic{TopicID: "t1", Tags: types.TagSet{IndustryTags: []string{"ai", "semiconductor"}}}
		engine := NewEngine(zerolog.Nop(), WithExisting(existingPairs{"t1": {"100"}}))

		got, err := engine.Assign(ranked, []types.PersonaProfile{top, persona("200", "ai"), persona("300", "ai"), persona("400", "ai")}, 3)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []string{"100"}, conflict.PersonaSerials)
		assert.Equal(t, []string{"200", "300"}, serials(got))
		assert.Zero(t, engine.UsedThisRun("100"))
	})

	t.Run("existing pair outside the open slots is not a conflict", func(t *testing.T) {
		engine := NewEngine(zerolog.Nop(), WithExisting(existingPairs{"t1": {"300"}}))
		got, err := engine.Assign(topic, pool, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"100"}, serials(got))
	})
}

func TestAssign_Reproducible(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	topic := types.Topic{TopicID: "t1", Tags: types.TagSet{IndustryTags: []string{"ai", "semiconductor"}}}
	pool := []types.PersonaProfile{persona("3", "ai"), persona("1", "semiconductor"), persona("2", "ai", "semiconductor")}

	first, err := NewEngine(zerolog.Nop(), WithClock(func() time.Time { return now })).Assign(topic, pool, 2)
	require.NoError(t, err)
	second, err := NewEngine(zerolog.Nop(), WithClock(func() time.Time { return now })).Assign(topic, pool, 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"2", "1"}, serials(first))
}

func TestAssign_PropertiesOverRandomPools(t *testing.T) {
	vocab := []string{"ai", "semiconductor", "ev", "biotech", "macro", "technical", "earnings", "surge"}
	rng := rand.New(rand.NewSource(42))
	pick := func() []string {
		var out []string
		for _, v := range vocab {
			if rng.Intn(3) == 0 {
				out = append(out, v)
			}
		}
		return out
	}

	for i := 0; i < 200; i++ {
		topic := types.Topic{
			TopicID: fmt.Sprintf("t%d", i),
			Tags:    types.TagSet{IndustryTags: pick(), EventTags: pick(), PersonaTags: pick()},
		}
		var pool []types.PersonaProfile
		for j := 0; j < rng.Intn(12); j++ {
			p := persona(fmt.Sprintf("%03d", j), pick()...)
			if rng.Intn(4) == 0 {
				p.ExclusionTags = []string{vocab[rng.Intn(len(vocab))]}
			}
			pool = append(pool, p)
		}
		topicCap := rng.Intn(4)

		got, err := NewEngine(zerolog.Nop()).Assign(topic, pool, topicCap)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), topicCap)

		seen := make(map[string]bool)
		for _, a := range got {
			assert.False(t, seen[a.WorkID], "duplicate pair %s", a.WorkID)
			seen[a.WorkID] = true
			assert.Greater(t, a.MatchScore, 0.0)
			for _, p := range pool {
				if p.Serial == a.PersonaSerial {
					assert.False(t, p.Excludes(topic.Tags.All()), "excluded persona %s assigned", p.Serial)
				}
			}
		}
	}
}
