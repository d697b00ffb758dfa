package topics

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func sample(id string) types.Topic {
	return types.Topic{
		TopicID: id,
		Title:   "台積電法說會 " + id,
		Origin:  types.OriginTrending,
		Tags: types.TagSet{
			IndustryTags:   []string{"semiconductor"},
			InstrumentTags: []string{"2330"},
		},
		Confidence:   0.6,
		SourceURL:    "https://example.com/" + id,
		DiscoveredAt: t0,
	}
}

func TestRepository_AddListAndDedupe(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	repo := NewRepository(mem, "topics", zerolog.Nop())
	require.NoError(t, repo.Init(ctx))

	added, err := repo.Add(ctx, []types.Topic{sample("a"), sample("b"), sample("a")})
	require.NoError(t, err)
	assert.Len(t, added, 2)

	added, err = repo.Add(ctx, []types.Topic{sample("b"), sample("c")})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "c", added[0].TopicID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, sample("a"), all[0])

	got, ok, err := repo.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c", got.TopicID)

	_, ok, err = repo.Get(ctx, "zzz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemoryStore(), "topics", zerolog.Nop())
	_, err := repo.Add(ctx, []types.Topic{sample("a"), sample("b"), sample("c")})
	require.NoError(t, err)

	require.NoError(t, repo.MarkProcessed(ctx, []string{"a", "c"}, t0.Add(time.Hour)))

	pending, err := repo.Unprocessed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].TopicID)

	a, _, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), a.ProcessedAt)
}

func TestRepository_ToleratesHandEditedSheet(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.Seed("topics", [][]string{
		{"Title", "TOPIC_ID", "industry_tags", "origin"},
		{"聯發科新品", "m1", "Semiconductor | AI", ""},
		{"bad origin", "m2", "", "rumour"},
		{"", "", "", ""},
	})
	repo := NewRepository(mem, "topics", zerolog.Nop())

	all, err := repo.List(ctx)

	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "m1", all[0].TopicID)
	assert.Equal(t, types.OriginTrending, all[0].Origin)
	assert.Equal(t, []string{"semiconductor", "ai"}, all[0].Tags.IndustryTags)

	rows, err := mem.ReadRows(ctx, "topics", "1:1")
	require.NoError(t, err)
	assert.Contains(t, rows[0], ColProcessedAt, "missing columns appended to header")
}
