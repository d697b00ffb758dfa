package types

// DefaultMaxDailyAssignments applies when the personas sheet has no max_daily_assignments value
const DefaultMaxDailyAssignments = 5

// PersonaProfile is a synthetic authoring identity
type PersonaProfile struct {
	Serial              string            `json:"serial"`
	DisplayName         string            `json:"display_name"`
	Enabled             bool              `json:"enabled"`
	PreferenceTags      []string          `json:"preference_tags"`
	ExclusionTags       []string          `json:"exclusion_tags"`
	MaxDailyAssignments int               `json:"max_daily_assignments"`
	Credentials         string            `json:"-"`
	StyleParams         map[string]string `json:"style_params,omitempty"`
}

// Excludes reports whether any of tags is in the persona's exclusion list
func (p PersonaProfile) Excludes(tags []string) bool {
	if len(p.ExclusionTags) == 0 {
		return false
	}
	excluded := make(map[string]bool, len(p.ExclusionTags))
	for _, t := range p.ExclusionTags {
		excluded[NormalizeTag(t)] = true
	}
	for _, t := range tags {
		if excluded[NormalizeTag(t)] {
			return true
		}
	}
	return false
}
