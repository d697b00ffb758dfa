package personas

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Registry owns the persona cache for a run. LoadAll does the single bulk read;
// lookups afterwards are served from memory.
type Registry struct {
	store  store.Store
	sheet  string
	logger zerolog.Logger

	mu       sync.RWMutex
	profiles []types.PersonaProfile
	bySerial map[string]types.PersonaProfile
}

// NewRegistry creates a registry reading from sheet
func NewRegistry(s store.Store, sheet string, logger zerolog.Logger) *Registry {
	return &Registry{
		store:    s,
		sheet:    sheet,
		logger:   logger.With().Str("component", "personas").Logger(),
		bySerial: make(map[string]types.PersonaProfile),
	}
}

// LoadAll reads the personas sheet once and replaces the cache. Profiles are sorted by serial.
func (r *Registry) LoadAll(ctx context.Context) ([]types.PersonaProfile, error) {
	rows, err := r.store.ReadRows(ctx, r.sheet, "")
	if err != nil {
		return nil, &ConfigurationError{Sheet: r.sheet, Message: "failed to read personas", Cause: err}
	}

	profiles, err := Parse(r.sheet, rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(profiles, func(i, j int) bool { return profiles[i].Serial < profiles[j].Serial })

	bySerial := make(map[string]types.PersonaProfile, len(profiles))
	enabled := 0
	for _, p := range profiles {
		bySerial[p.Serial] = p
		if p.Enabled {
			enabled++
		}
	}

	r.mu.Lock()
	r.profiles = profiles
	r.bySerial = bySerial
	r.mu.Unlock()

	r.logger.Info().Int("personas", len(profiles)).Int("enabled", enabled).Msg("loaded personas")
	return Clone(profiles), nil
}

// Cached returns the profiles from the last LoadAll
func (r *Registry) Cached() []types.PersonaProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Clone(r.profiles)
}

// GetBySerial returns the cached profile for serial or *NotFoundError
func (r *Registry) GetBySerial(serial string) (types.PersonaProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.bySerial[serial]
	if !ok {
		return types.PersonaProfile{}, &NotFoundError{Serial: serial}
	}
	return p, nil
}

// Clone copies profiles so callers cannot mutate the cache
func Clone(profiles []types.PersonaProfile) []types.PersonaProfile {
	if profiles == nil {
		return nil
	}
	out := make([]types.PersonaProfile, len(profiles))
	for i, p := range profiles {
		p.PreferenceTags = append([]string(nil), p.PreferenceTags...)
		p.ExclusionTags = append([]string(nil), p.ExclusionTags...)
		if p.StyleParams != nil {
			style := make(map[string]string, len(p.StyleParams))
			for k, v := range p.StyleParams {
				style[k] = v
			}
			p.StyleParams = style
		}
		out[i] = p
	}
	return out
}
