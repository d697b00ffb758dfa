// Package pipeline runs a generation batch: it loads personas once, assigns unprocessed
// topics, writes pending ledger rows and generates content for every pending row.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hihihowru/forum-autoposter-sub005/internal/assignment"
	"github.com/hihihowru/forum-autoposter-sub005/internal/classify"
	"github.com/hihihowru/forum-autoposter-sub005/internal/generation"
	"github.com/hihihowru/forum-autoposter-sub005/internal/ledger"
	"github.com/hihihowru/forum-autoposter-sub005/internal/metrics"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Progress steps
const (
	StepPersonas = "load_personas"
	StepAssign   = "assign"
	StepGenerate = "generate"
	StepComplete = "complete"
)

// ProgressEvent represents a progress update during a batch
type ProgressEvent struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	BatchID string `json:"batch_id"`
	Content any    `json:"content,omitempty"`
}

// ProgressCallback is called when batch progress occurs
type ProgressCallback func(event ProgressEvent)

// PersonaSource loads the persona pool for a run and serves lookups from it
type PersonaSource interface {
	LoadAll(ctx context.Context) ([]types.PersonaProfile, error)
	GetBySerial(serial string) (types.PersonaProfile, error)
}

// TopicSource reads and marks topics
type TopicSource interface {
	Unprocessed(ctx context.Context, limit int) ([]types.Topic, error)
	Get(ctx context.Context, topicID string) (types.Topic, bool, error)
	MarkProcessed(ctx context.Context, topicIDs []string, at time.Time) error
}

// Config holds batch limits
type Config struct {
	// TopicCap is max_assignments_per_topic
	TopicCap int
	// TopicLimit bounds unprocessed topics taken per batch; zero means all
	TopicLimit int
	// Spacing staggers scheduled_at of one persona's ready rows
	Spacing time.Duration
}

// DefaultConfig returns the standard batch limits
func DefaultConfig() Config {
	return Config{TopicCap: 3, TopicLimit: 20, Spacing: 30 * time.Minute}
}

// BatchOptions narrow one run
type BatchOptions struct {
	// TopicLimit overrides Config.TopicLimit when positive
	TopicLimit int
	// PersonaFilter restricts assignment and generation to these serials
	PersonaFilter []string
	OnProgress    ProgressCallback
}

// ItemOutcome is the generation result of one work item
type ItemOutcome struct {
	WorkID     string           `json:"work_id"`
	Status     types.PostStatus `json:"status"`
	Title      string           `json:"title,omitempty"`
	ReviewFlag string           `json:"review_flag,omitempty"`
	Deferred   bool             `json:"deferred,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Report summarizes a batch
type Report struct {
	BatchID    string        `json:"batch_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Topics     int           `json:"topics"`
	Assigned   int           `json:"assigned"`
	Conflicts  int           `json:"conflicts"`
	Ready      int           `json:"ready"`
	Flagged    int           `json:"flagged"`
	Failed     int           `json:"failed"`
	Deferred   int           `json:"deferred"`
	Items      []ItemOutcome `json:"items,omitempty"`
}

// Runner executes generation batches
type Runner struct {
	personas   PersonaSource
	topics     TopicSource
	ledger     *ledger.Ledger
	classifier *classify.Classifier
	orch       *generation.Orchestrator
	cfg        Config
	metrics    *metrics.Registry
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures a Runner
type Option func(*Runner)

// WithMetrics records assignment counts on m
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a batch runner
func NewRunner(personas PersonaSource, topics TopicSource, l *ledger.Ledger, classifier *classify.Classifier, orch *generation.Orchestrator, cfg Config, logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		personas:   personas,
		topics:     topics,
		ledger:     l,
		classifier: classifier,
		orch:       orch,
		cfg:        cfg,
		logger:     logger.With().Str("component", "pipeline").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunBatch runs one generation batch. Only a persona configuration failure or a store
// failure aborts it; per-item failures are recorded on their rows.
func (r *Runner) RunBatch(ctx context.Context, opts BatchOptions) (*Report, error) {
	report := &Report{BatchID: uuid.NewString(), StartedAt: r.now().UTC()}
	log := r.logger.With().Str("batch_id", report.BatchID).Logger()
	emit := func(step, msg string, content any) {
		if opts.OnProgress != nil {
			opts.OnProgress(ProgressEvent{Step: step, Message: msg, BatchID: report.BatchID, Content: content})
		}
	}

	pool, err := r.personas.LoadAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("cannot load personas, aborting batch")
		return nil, err
	}
	pool = filterPersonas(pool, opts.PersonaFilter)
	emit(StepPersonas, "personas loaded", map[string]int{"personas": len(pool)})

	topicsByID, err := r.assign(ctx, log, pool, opts, report)
	if err != nil {
		return nil, err
	}
	emit(StepAssign, "assignments written", map[string]int{"topics": report.Topics, "assigned": report.Assigned})

	if err := r.generate(ctx, log, topicsByID, opts, report, emit); err != nil {
		return nil, err
	}

	report.FinishedAt = r.now().UTC()
	log.Info().
		Int("topics", report.Topics).
		Int("assigned", report.Assigned).
		Int("ready", report.Ready).
		Int("flagged", report.Flagged).
		Int("failed", report.Failed).
		Int("deferred", report.Deferred).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("batch complete")
	emit(StepComplete, "batch complete", report)
	return report, nil
}

// assign classifies and assigns unprocessed topics, writes pending rows and marks the
// topics processed
func (r *Runner) assign(ctx context.Context, log zerolog.Logger, pool []types.PersonaProfile, opts BatchOptions, report *Report) (map[string]types.Topic, error) {
	limit := r.cfg.TopicLimit
	if opts.TopicLimit > 0 {
		limit = opts.TopicLimit
	}
	topics, err := r.topics.Unprocessed(ctx, limit)
	if err != nil {
		return nil, err
	}
	report.Topics = len(topics)

	now := r.now()
	snap, err := r.ledger.Snapshot(ctx, now)
	if err != nil {
		return nil, err
	}
	engine := assignment.NewEngine(r.logger, assignment.WithQuota(snap), assignment.WithExisting(snap), assignment.WithClock(func() time.Time { return now.UTC() }))

	byID := make(map[string]types.Topic, len(topics))
	var all []types.Assignment
	ids := make([]string, 0, len(topics))
	for _, t := range topics {
		if t.Tags.IsEmpty() && t.Confidence == 0 {
			t.Tags, t.Confidence = r.classifier.Classify(t.Title, t.Body)
		}
		byID[t.TopicID] = t
		ids = append(ids, t.TopicID)

		got, err := engine.Assign(t, pool, r.cfg.TopicCap)
		var conflict *assignment.ConflictError
		if errors.As(err, &conflict) {
			log.Warn().Err(err).Str("topic_id", t.TopicID).Msg("assignment conflict")
			report.Conflicts += len(conflict.PersonaSerials)
			r.metrics.Assigned("conflict", len(conflict.PersonaSerials))
		} else if err != nil {
			return nil, err
		}
		if len(got) == 0 {
			log.Debug().Str("topic_id", t.TopicID).Float64("confidence", t.Confidence).Msg("topic received no assignments")
		}
		all = append(all, got...)
	}

	created, err := r.ledger.CreateAll(ctx, all)
	var dup *ledger.DuplicateError
	if errors.As(err, &dup) {
		log.Warn().Err(err).Msg("skipped duplicate work items")
		report.Conflicts += len(dup.WorkIDs)
		r.metrics.Assigned("conflict", len(dup.WorkIDs))
	} else if err != nil {
		return nil, err
	}
	report.Assigned = len(created)
	r.metrics.Assigned("assigned", len(created))

	if err := r.topics.MarkProcessed(ctx, ids, now.UTC().Truncate(time.Second)); err != nil {
		return nil, err
	}
	return byID, nil
}

// generate runs the orchestrator over every pending row with one title set
func (r *Runner) generate(ctx context.Context, log zerolog.Logger, topicsByID map[string]types.Topic, opts BatchOptions, report *Report, emit func(string, string, any)) error {
	pending, err := r.ledger.List(ctx, ledger.Filter{Statuses: []types.PostStatus{types.StatusPendingGeneration}})
	if err != nil {
		return err
	}
	slots, err := r.nextSlots(ctx)
	if err != nil {
		return err
	}

	allowed := make(map[string]bool, len(opts.PersonaFilter))
	for _, serial := range opts.PersonaFilter {
		allowed[serial] = true
	}

	used := generation.NewTitleSet()
	for _, rec := range pending {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Msg("batch cancelled, leaving remaining rows pending")
			break
		}
		if len(allowed) > 0 && !allowed[rec.PersonaSerial] {
			continue
		}
		persona, err := r.personas.GetBySerial(rec.PersonaSerial)
		if err != nil {
			r.fail(ctx, log, rec, "persona "+rec.PersonaSerial+" not found in registry", report)
			continue
		}
		if !persona.Enabled {
			continue
		}
		topic, ok, err := r.topic(ctx, topicsByID, rec.TopicID)
		if err != nil {
			return err
		}
		if !ok {
			r.fail(ctx, log, rec, "topic "+rec.TopicID+" not found", report)
			continue
		}

		a := types.Assignment{
			WorkID:        rec.WorkID,
			TopicID:       rec.TopicID,
			PersonaSerial: rec.PersonaSerial,
			MatchScore:    rec.MatchScore,
			CreatedAt:     rec.CreatedAt,
		}
		res := r.orch.Generate(ctx, a, topic, persona, used)
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Str("work_id", rec.WorkID).Msg("batch cancelled, leaving remaining rows pending")
			report.Deferred++
			report.Items = append(report.Items, ItemOutcome{WorkID: rec.WorkID, Status: rec.Status, Deferred: true})
			emit(StepGenerate, "work item deferred", report.Items[len(report.Items)-1])
			break
		}
		switch {
		case res.Deferred:
			report.Deferred++
			report.Items = append(report.Items, ItemOutcome{WorkID: rec.WorkID, Status: rec.Status, Deferred: true})
		case res.Failure != nil:
			_, err := r.ledger.Transition(ctx, rec.WorkID, ledger.Change{
				To:                 types.StatusGenerationFailed,
				LastError:          res.Record.LastError,
				GenerationAttempts: rec.GenerationAttempts + res.Record.GenerationAttempts,
			})
			r.record(log, rec.WorkID, types.StatusGenerationFailed, res.Record, err, report)
		default:
			at := slots.next(rec.PersonaSerial, r.now().UTC(), r.cfg.Spacing)
			_, err := r.ledger.Transition(ctx, rec.WorkID, ledger.Change{
				To:                 types.StatusReadyToPublish,
				Title:              res.Record.Title,
				Body:               res.Record.Body,
				ReviewFlag:         res.Record.ReviewFlag,
				ScheduledAt:        at,
				GenerationAttempts: rec.GenerationAttempts + res.Record.GenerationAttempts,
			})
			r.record(log, rec.WorkID, types.StatusReadyToPublish, res.Record, err, report)
		}
		emit(StepGenerate, "work item generated", report.Items[len(report.Items)-1])
	}
	return nil
}

func (r *Runner) topic(ctx context.Context, cache map[string]types.Topic, id string) (types.Topic, bool, error) {
	if t, ok := cache[id]; ok {
		return t, true, nil
	}
	t, ok, err := r.topics.Get(ctx, id)
	if err != nil || !ok {
		return t, ok, err
	}
	if t.Tags.IsEmpty() && t.Confidence == 0 {
		t.Tags, t.Confidence = r.classifier.Classify(t.Title, t.Body)
	}
	cache[id] = t
	return t, true, nil
}

func (r *Runner) fail(ctx context.Context, log zerolog.Logger, rec types.PostRecord, msg string, report *Report) {
	_, err := r.ledger.Transition(ctx, rec.WorkID, ledger.Change{To: types.StatusGenerationFailed, LastError: msg})
	r.record(log, rec.WorkID, types.StatusGenerationFailed, types.PostRecord{LastError: msg}, err, report)
}

func (r *Runner) record(log zerolog.Logger, workID string, to types.PostStatus, rec types.PostRecord, err error, report *Report) {
	item := ItemOutcome{WorkID: workID, Status: to, Title: rec.Title, ReviewFlag: rec.ReviewFlag, Error: rec.LastError}
	if err != nil {
		log.Error().Err(err).Str("work_id", workID).Str("to", string(to)).Msg("failed to record generation outcome")
		item.Status = types.StatusPendingGeneration
		item.Error = err.Error()
		report.Items = append(report.Items, item)
		return
	}
	r.metrics.Transition(string(to))
	switch {
	case to == types.StatusGenerationFailed:
		report.Failed++
	case rec.ReviewFlag != "":
		report.Ready++
		report.Flagged++
	default:
		report.Ready++
	}
	report.Items = append(report.Items, item)
}

// slots hands out staggered publish times per persona
type slots map[string]time.Time

// nextSlots starts each persona after its latest queued ready row
func (r *Runner) nextSlots(ctx context.Context) (slots, error) {
	ready, err := r.ledger.List(ctx, ledger.Filter{Statuses: []types.PostStatus{types.StatusReadyToPublish}})
	if err != nil {
		return nil, err
	}
	s := make(slots)
	for _, rec := range ready {
		if rec.ScheduledAt.After(s[rec.PersonaSerial]) {
			s[rec.PersonaSerial] = rec.ScheduledAt
		}
	}
	return s, nil
}

func (s slots) next(serial string, now time.Time, spacing time.Duration) time.Time {
	at := now.Truncate(time.Second)
	if last, ok := s[serial]; ok {
		if candidate := last.Add(spacing); candidate.After(at) {
			at = candidate
		}
	}
	s[serial] = at
	return at
}

func filterPersonas(pool []types.PersonaProfile, filter []string) []types.PersonaProfile {
	if len(filter) == 0 {
		return pool
	}
	want := make(map[string]bool, len(filter))
	for _, s := range filter {
		want[s] = true
	}
	var out []types.PersonaProfile
	for _, p := range pool {
		if want[p.Serial] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}
