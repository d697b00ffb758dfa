// Package types provides type definitions for structured data used throughout the forum autoposter.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"sort"
	"strings"
	"time"
)

// Origin identifies where a topic was discovered
type Origin string

// Origin constants
const (
	OriginTrending   Origin = "trending"
	OriginPriceEvent Origin = "price_event"
)

// IsValid reports whether o is a known origin
func (o Origin) IsValid() bool {
	return o == OriginTrending || o == OriginPriceEvent
}

// TagSet is the classification output for a topic
type TagSet struct {
	PersonaTags    []string `json:"persona_tags"`
	IndustryTags   []string `json:"industry_tags"`
	EventTags      []string `json:"event_tags"`
	InstrumentTags []string `json:"instrument_tags"`
}

// IsEmpty reports whether no tag of any kind is present
func (t TagSet) IsEmpty() bool {
	return len(t.PersonaTags) == 0 && len(t.IndustryTags) == 0 &&
		len(t.EventTags) == 0 && len(t.InstrumentTags) == 0
}

// All returns every tag in the set, normalized and de-duplicated
func (t TagSet) All() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{t.PersonaTags, t.IndustryTags, t.EventTags, t.InstrumentTags} {
		for _, tag := range group {
			n := NormalizeTag(tag)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Topic is a unit of source material to be converted into posts
type Topic struct {
	TopicID      string    `json:"topic_id"`
	Title        string    `json:"title"`
	Body         string    `json:"body,omitempty"`
	Origin       Origin    `json:"origin"`
	Tags         TagSet    `json:"tag_set"`
	Confidence   float64   `json:"confidence"`
	SourceURL    string    `json:"source_url,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
	ProcessedAt  time.Time `json:"processed_at,omitempty"`
}

// NormalizeTag lower-cases and trims a tag
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// SplitList parses a comma or pipe separated cell into normalized tags
func SplitList(cell string) []string {
	fields := strings.FieldsFunc(cell, func(r rune) bool {
		return r == ',' || r == '|' || r == ';'
	})
	var out []string
	for _, f := range fields {
		if n := NormalizeTag(f); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// JoinList is the inverse of SplitList
func JoinList(tags []string) string {
	return strings.Join(tags, ",")
}
