package personas

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
)

type countingStore struct {
	*store.MemoryStore
	reads int
	err   error
}

func (c *countingStore) ReadRows(ctx context.Context, sheet, rng string) ([][]string, error) {
	c.reads++
	if c.err != nil {
		return nil, c.err
	}
	return c.MemoryStore.ReadRows(ctx, sheet, rng)
}

func newSeededStore() *countingStore {
	mem := store.NewMemoryStore()
	mem.Seed("personas", [][]string{
		{"serial", "credentials", "enabled", "preference_tags"},
		{"202", "b", "true", "macro"},
		{"200", "a", "false", "technical"},
	})
	return &countingStore{MemoryStore: mem}
}

func TestRegistry_LoadAllOnceThenLookup(t *testing.T) {
	s := newSeededStore()
	r := NewRegistry(s, "personas", zerolog.Nop())

	profiles, err := r.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "200", profiles[0].Serial)
	assert.Equal(t, "202", profiles[1].Serial)

	for i := 0; i < 5; i++ {
		p, err := r.GetBySerial("202")
		require.NoError(t, err)
		assert.Equal(t, []string{"macro"}, p.PreferenceTags)
	}
	assert.Equal(t, 1, s.reads)

	_, err = r.GetBySerial("999")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRegistry_CachedIsACopy(t *testing.T) {
	r := NewRegistry(newSeededStore(), "personas", zerolog.Nop())
	_, err := r.LoadAll(context.Background())
	require.NoError(t, err)

	cached := r.Cached()
	cached[0].PreferenceTags[0] = "mutated"

	p, err := r.GetBySerial("200")
	require.NoError(t, err)
	assert.Equal(t, []string{"technical"}, p.PreferenceTags)
}

func TestRegistry_StoreFailureIsConfigurationError(t *testing.T) {
	s := newSeededStore()
	s.err = errors.New("quota exceeded")
	r := NewRegistry(s, "personas", zerolog.Nop())

	_, err := r.LoadAll(context.Background())
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "quota exceeded")
}
