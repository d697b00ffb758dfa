// Package discovery pulls candidate topics from trending feeds, pages and price moves,
// classifies them and stores them on the topics sheet.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hihihowru/forum-autoposter-sub005/internal/classify"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// topicNamespace seeds deterministic topic ids
var topicNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("forum-autoposter/topics"))

// TopicStore persists discovered topics, skipping known ids
type TopicStore interface {
	Add(ctx context.Context, topics []types.Topic) ([]types.Topic, error)
}

// SourceError is one source that failed during a run
type SourceError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Report summarizes a discovery run
type Report struct {
	Candidates int           `json:"candidates"`
	Added      int           `json:"added"`
	Errors     []SourceError `json:"errors,omitempty"`
}

// Discoverer runs every source and stores new topics
type Discoverer struct {
	sources     []Source
	classifier  *classify.Classifier
	store       TopicStore
	logger      zerolog.Logger
	now         func() time.Time
	concurrency int
}

// New creates a discoverer
func New(sources []Source, classifier *classify.Classifier, store TopicStore, logger zerolog.Logger) *Discoverer {
	return &Discoverer{
		sources:     sources,
		classifier:  classifier,
		store:       store,
		logger:      logger.With().Str("component", "discovery").Logger(),
		now:         time.Now,
		concurrency: 4,
	}
}

// TopicID derives the stable id of a candidate key
func TopicID(key string) string {
	return uuid.NewSHA1(topicNamespace, []byte(key)).String()
}

// Run fetches all sources concurrently. A failing source is reported and the others
// are still stored.
func (d *Discoverer) Run(ctx context.Context) (*Report, error) {
	var (
		mu         sync.Mutex
		candidates []Candidate
		report     Report
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, src := range d.sources {
		g.Go(func() error {
			found, err := src.Discover(gCtx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.logger.Warn().Err(err).Str("source", src.Name()).Msg("discovery source failed")
				report.Errors = append(report.Errors, SourceError{Source: src.Name(), Error: err.Error()})
				return nil
			}
			d.logger.Debug().Str("source", src.Name()).Int("candidates", len(found)).Msg("source fetched")
			candidates = append(candidates, found...)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Errors, func(i, j int) bool { return report.Errors[i].Source < report.Errors[j].Source })
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Key < candidates[j].Key })
	report.Candidates = len(candidates)

	topics := d.toTopics(candidates)
	added, err := d.store.Add(ctx, topics)
	if err != nil {
		return &report, err
	}
	report.Added = len(added)

	d.logger.Info().
		Int("sources", len(d.sources)).
		Int("candidates", report.Candidates).
		Int("added", report.Added).
		Int("failed_sources", len(report.Errors)).
		Msg("discovery complete")
	return &report, nil
}

func (d *Discoverer) toTopics(candidates []Candidate) []types.Topic {
	now := d.now().UTC().Truncate(time.Second)
	seen := make(map[string]bool, len(candidates))
	out := make([]types.Topic, 0, len(candidates))
	for _, c := range candidates {
		id := TopicID(c.Key)
		if seen[id] {
			continue
		}
		seen[id] = true

		tags, confidence := d.classifier.Classify(c.Title, c.Body)
		tags.EventTags = mergeTags(tags.EventTags, c.EventTags)
		tags.InstrumentTags = mergeTags(tags.InstrumentTags, c.Instruments)
		if len(c.EventTags) > 0 || len(c.Instruments) > 0 {
			confidence = max(confidence, 0.5)
		}

		out = append(out, types.Topic{
			TopicID:      id,
			Title:        c.Title,
			Body:         c.Body,
			Origin:       c.Origin,
			Tags:         tags,
			Confidence:   confidence,
			SourceURL:    c.URL,
			DiscoveredAt: now,
		})
	}
	return out
}

func mergeTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, group := range [][]string{a, b} {
		for _, t := range group {
			n := types.NormalizeTag(t)
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
