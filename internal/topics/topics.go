// Package topics stores discovered topics on the topics sheet.
package topics

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Column names of the topics sheet
const (
	ColTopicID        = "topic_id"
	ColTitle          = "title"
	ColBody           = "body"
	ColOrigin         = "origin"
	ColPersonaTags    = "persona_tags"
	ColIndustryTags   = "industry_tags"
	ColEventTags      = "event_tags"
	ColInstrumentTags = "instrument_tags"
	ColConfidence     = "confidence"
	ColSourceURL      = "source_url"
	ColDiscoveredAt   = "discovered_at"
	ColProcessedAt    = "processed_at"
)

// Columns is the topics sheet layout written to a fresh sheet
var Columns = []string{
	ColTopicID, ColTitle, ColBody, ColOrigin, ColPersonaTags, ColIndustryTags, ColEventTags,
	ColInstrumentTags, ColConfidence, ColSourceURL, ColDiscoveredAt, ColProcessedAt,
}

// Repository reads and writes topics
type Repository struct {
	store  store.Store
	sheet  string
	logger zerolog.Logger

	mu     sync.Mutex
	header store.Header
}

// NewRepository creates a repository over sheet
func NewRepository(s store.Store, sheet string, logger zerolog.Logger) *Repository {
	return &Repository{
		store:  s,
		sheet:  sheet,
		logger: logger.With().Str("component", "topics").Logger(),
	}
}

// Init makes sure the sheet carries the topics header
func (r *Repository) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureHeader(ctx)
}

func (r *Repository) ensureHeader(ctx context.Context) error {
	if r.header.Width() > 0 {
		return nil
	}
	h, err := store.EnsureHeader(ctx, r.store, r.sheet, Columns)
	if err != nil {
		return err
	}
	r.header = h
	return nil
}

type row struct {
	num   int
	topic types.Topic
}

// readAll returns every decodable topic with its row number. Caller holds mu.
func (r *Repository) readAll(ctx context.Context) ([]row, error) {
	if err := r.ensureHeader(ctx); err != nil {
		return nil, err
	}
	rows, err := r.store.ReadRows(ctx, r.sheet, "A2:"+store.ColumnName(r.header.Width()-1))
	if err != nil {
		return nil, fmt.Errorf("failed to read topics: %w", err)
	}

	out := make([]row, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i, cells := range rows {
		num := i + 2
		t, err := decode(r.header, cells)
		if err != nil {
			r.logger.Warn().Err(err).Int("row", num).Msg("skipping malformed topic row")
			continue
		}
		if t.TopicID == "" || seen[t.TopicID] {
			continue
		}
		seen[t.TopicID] = true
		out = append(out, row{num: num, topic: t})
	}
	return out, nil
}

// List returns every topic in sheet order
func (r *Repository) List(ctx context.Context) ([]types.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Topic, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.topic)
	}
	return out, nil
}

// Unprocessed returns up to limit topics without a processed marker, oldest first
func (r *Repository) Unprocessed(ctx context.Context, limit int) ([]types.Topic, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Topic
	for _, t := range all {
		if !t.ProcessedAt.IsZero() {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Get returns one topic by id
func (r *Repository) Get(ctx context.Context, topicID string) (types.Topic, bool, error) {
	all, err := r.List(ctx)
	if err != nil {
		return types.Topic{}, false, err
	}
	for _, t := range all {
		if t.TopicID == topicID {
			return t, true, nil
		}
	}
	return types.Topic{}, false, nil
}

// Add appends topics whose id is not already stored and returns the ones written
func (r *Repository) Add(ctx context.Context, topics []types.Topic) ([]types.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing)+len(topics))
	for _, rw := range existing {
		seen[rw.topic.TopicID] = true
	}

	var added []types.Topic
	var rows [][]string
	for _, t := range topics {
		if t.TopicID == "" || seen[t.TopicID] {
			continue
		}
		seen[t.TopicID] = true
		added = append(added, t)
		rows = append(rows, encode(r.header, t))
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := r.store.AppendRows(ctx, r.sheet, rows); err != nil {
		return nil, fmt.Errorf("failed to append topics: %w", err)
	}
	r.logger.Info().Int("added", len(added)).Int("skipped", len(topics)-len(added)).Msg("topics stored")
	return added, nil
}

// MarkProcessed sets processed_at on the given topics
func (r *Repository) MarkProcessed(ctx context.Context, topicIDs []string, at time.Time) error {
	if len(topicIDs) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.readAll(ctx)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(topicIDs))
	for _, id := range topicIDs {
		want[id] = true
	}
	for _, rw := range rows {
		if !want[rw.topic.TopicID] {
			continue
		}
		t := rw.topic
		t.ProcessedAt = at
		rng := store.RowRange(rw.num, r.header.Width())
		if err := r.store.WriteRows(ctx, r.sheet, rng, [][]string{encode(r.header, t)}); err != nil {
			return fmt.Errorf("failed to mark topic %s processed: %w", t.TopicID, err)
		}
	}
	return nil
}

func encode(h store.Header, t types.Topic) []string {
	return h.Encode(map[string]string{
		ColTopicID:        t.TopicID,
		ColTitle:          t.Title,
		ColBody:           t.Body,
		ColOrigin:         string(t.Origin),
		ColPersonaTags:    types.JoinList(t.Tags.PersonaTags),
		ColIndustryTags:   types.JoinList(t.Tags.IndustryTags),
		ColEventTags:      types.JoinList(t.Tags.EventTags),
		ColInstrumentTags: types.JoinList(t.Tags.InstrumentTags),
		ColConfidence:     strconv.FormatFloat(t.Confidence, 'f', -1, 64),
		ColSourceURL:      t.SourceURL,
		ColDiscoveredAt:   formatTime(t.DiscoveredAt),
		ColProcessedAt:    formatTime(t.ProcessedAt),
	})
}

func decode(h store.Header, cells []string) (types.Topic, error) {
	t := types.Topic{
		TopicID:   h.Get(cells, ColTopicID),
		Title:     h.Get(cells, ColTitle),
		Body:      h.Get(cells, ColBody),
		Origin:    types.Origin(h.Get(cells, ColOrigin)),
		SourceURL: h.Get(cells, ColSourceURL),
		Tags: types.TagSet{
			PersonaTags:    types.SplitList(h.Get(cells, ColPersonaTags)),
			IndustryTags:   types.SplitList(h.Get(cells, ColIndustryTags)),
			EventTags:      types.SplitList(h.Get(cells, ColEventTags)),
			InstrumentTags: types.SplitList(h.Get(cells, ColInstrumentTags)),
		},
	}
	if t.Origin == "" {
		t.Origin = types.OriginTrending
	}
	if !t.Origin.IsValid() {
		return t, fmt.Errorf("topic %s: unknown origin %q", t.TopicID, t.Origin)
	}

	var err error
	if v := h.Get(cells, ColConfidence); v != "" {
		if t.Confidence, err = strconv.ParseFloat(v, 64); err != nil {
			return t, fmt.Errorf("topic %s: bad confidence: %w", t.TopicID, err)
		}
	}
	if t.DiscoveredAt, err = parseTime(h.Get(cells, ColDiscoveredAt)); err != nil {
		return t, fmt.Errorf("topic %s: bad discovered_at: %w", t.TopicID, err)
	}
	if t.ProcessedAt, err = parseTime(h.Get(cells, ColProcessedAt)); err != nil {
		return t, fmt.Errorf("topic %s: bad processed_at: %w", t.TopicID, err)
	}
	return t, nil
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
