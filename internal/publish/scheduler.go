// Package publish moves ready posts onto the forum platform, one sequential worker per persona.
package publish

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hihihowru/forum-autoposter-sub005/internal/ledger"
	"github.com/hihihowru/forum-autoposter-sub005/internal/metrics"
	"github.com/hihihowru/forum-autoposter-sub005/internal/platform"
	"github.com/hihihowru/forum-autoposter-sub005/internal/retry"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Config bounds one tick
type Config struct {
	// TickCap is the most rows selected per tick
	TickCap int
	// TickBudget is the wall-clock limit of a tick
	TickBudget time.Duration
	// PoolSize is how many personas publish concurrently
	PoolSize int
	// MinDelay separates successive publish calls of one persona
	MinDelay time.Duration
	// SessionSkew refreshes sessions this close to expiry
	SessionSkew time.Duration
	// RatePerSecond is the global platform ceiling; zero disables it
	RatePerSecond float64
	Burst         int
	// WriteRetry governs ledger writes after a successful publish
	WriteRetry retry.Policy
}

// DefaultConfig returns the standard publish bounds
func DefaultConfig() Config {
	return Config{
		TickCap:       50,
		TickBudget:    10 * time.Minute,
		PoolSize:      4,
		MinDelay:      120 * time.Second,
		SessionSkew:   2 * time.Minute,
		RatePerSecond: 1,
		Burst:         1,
		WriteRetry:    retry.Policy{MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second, Multiplier: 2},
	}
}

// PersonaSource loads the persona pool for a run and serves lookups from it
type PersonaSource interface {
	LoadAll(ctx context.Context) ([]types.PersonaProfile, error)
	GetBySerial(serial string) (types.PersonaProfile, error)
}

// TickOptions narrows one tick
type TickOptions struct {
	// Cap overrides Config.TickCap when positive
	Cap int
	// PersonaFilter restricts the tick to these serials when non-empty
	PersonaFilter []string
}

// Outcome is what happened to one selected row
type Outcome struct {
	WorkID         string           `json:"work_id"`
	PersonaSerial  string           `json:"persona_serial"`
	Status         types.PostStatus `json:"status"`
	PlatformPostID string           `json:"platform_post_id,omitempty"`
	Error          string           `json:"error,omitempty"`
	// SkipReason is set for rows left in ready_to_publish
	SkipReason string `json:"skip_reason,omitempty"`
}

// BatchResult summarizes a tick
type BatchResult struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Selected   int       `json:"selected"`
	Published  int       `json:"published"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Outcomes   []Outcome `json:"outcomes"`
	// Unrecorded lists rows published on the platform whose ledger write is still owed
	Unrecorded []string `json:"unrecorded,omitempty"`
}

// Scheduler runs publish ticks
type Scheduler struct {
	ledger   *ledger.Ledger
	personas PersonaSource
	api      platform.API
	sessions platform.SessionCache
	pacer    *Pacer
	limiter  *rate.Limiter
	cfg      Config
	clock    Clock
	metrics  *metrics.Registry
	logger   zerolog.Logger

	running sync.Mutex

	// accepted holds posts the platform took whose published write did not land.
	// Later ticks only retry the write for these rows.
	acceptedMu sync.Mutex
	accepted   map[string]acceptedPost
}

type acceptedPost struct {
	PlatformPostID string
	PublishedAt    time.Time
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock overrides the time source used for selection and pacing
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithMetrics records tick and publish metrics on m
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler wires a scheduler
func NewScheduler(l *ledger.Ledger, personas PersonaSource, api platform.API, sessions platform.SessionCache, cfg Config, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		ledger:   l,
		personas: personas,
		api:      api,
		sessions: sessions,
		cfg:      cfg,
		clock:    realClock{},
		logger:   logger.With().Str("component", "publish").Logger(),
		accepted: make(map[string]acceptedPost),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = platform.NewMemorySessionCache()
	}
	if s.cfg.PoolSize < 1 {
		s.cfg.PoolSize = 1
	}
	s.pacer = NewPacer(cfg.MinDelay, s.clock)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	} else {
		s.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return s
}

// unrecorded returns the work ids published on the platform but not yet marked published
func (s *Scheduler) unrecorded() []string {
	s.acceptedMu.Lock()
	defer s.acceptedMu.Unlock()
	out := make([]string, 0, len(s.accepted))
	for id := range s.accepted {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) rememberAccepted(workID string, p acceptedPost) {
	s.acceptedMu.Lock()
	defer s.acceptedMu.Unlock()
	s.accepted[workID] = p
}

func (s *Scheduler) takeAccepted(workID string) (acceptedPost, bool) {
	s.acceptedMu.Lock()
	defer s.acceptedMu.Unlock()
	p, ok := s.accepted[workID]
	if ok {
		delete(s.accepted, workID)
	}
	return p, ok
}

// Tick publishes due ready_to_publish rows. Rows not reached within the tick budget
// stay ready for the next tick. Only failing to read the ledger or the persona pool
// is returned as an error.
func (s *Scheduler) Tick(ctx context.Context, opts TickOptions) (*BatchResult, error) {
	if !s.running.TryLock() {
		return nil, ErrTickInProgress
	}
	defer s.running.Unlock()
	defer s.metrics.TickStarted()()

	if s.cfg.TickBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TickBudget)
		defer cancel()
	}

	result := &BatchResult{StartedAt: s.clock.Now().UTC()}

	rows, err := s.selectRows(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Selected = len(rows)
	if len(rows) == 0 {
		result.FinishedAt = s.clock.Now().UTC()
		s.logger.Debug().Msg("no rows due")
		return result, nil
	}

	if _, err := s.personas.LoadAll(ctx); err != nil {
		return nil, err
	}

	groups, order := groupByPersona(rows)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PoolSize)
	for _, serial := range order {
		persona, lerr := s.personas.GetBySerial(serial)
		w := &worker{
			s:       s,
			serial:  serial,
			rows:    groups[serial],
			logger:  s.logger.With().Str("persona", serial).Logger(),
			persona: persona,
			known:   lerr == nil,
		}
		g.Go(func() error {
			outcomes := w.run(gCtx)
			mu.Lock()
			result.Outcomes = append(result.Outcomes, outcomes...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range result.Outcomes {
		switch {
		case o.SkipReason != "":
			result.Skipped++
		case o.Status == types.StatusPublished:
			result.Published++
		case o.Status == types.StatusPublishFailed:
			result.Failed++
		}
	}
	result.FinishedAt = s.clock.Now().UTC()
	result.Unrecorded = s.unrecorded()

	s.logger.Info().
		Int("selected", result.Selected).
		Int("published", result.Published).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int("unrecorded", len(result.Unrecorded)).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("publish tick complete")
	return result, nil
}

func (s *Scheduler) selectRows(ctx context.Context, opts TickOptions) ([]types.PostRecord, error) {
	limit := s.cfg.TickCap
	if opts.Cap > 0 {
		limit = opts.Cap
	}
	if len(opts.PersonaFilter) == 0 {
		return s.ledger.ReadyToPublish(ctx, s.clock.Now(), limit)
	}

	due, err := s.ledger.ReadyToPublish(ctx, s.clock.Now(), 0)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(opts.PersonaFilter))
	for _, serial := range opts.PersonaFilter {
		allowed[serial] = true
	}
	var out []types.PostRecord
	for _, r := range due {
		if !allowed[r.PersonaSerial] {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// groupByPersona keeps each persona's rows in scheduled order and the personas in
// order of their oldest row
func groupByPersona(rows []types.PostRecord) (map[string][]types.PostRecord, []string) {
	groups := make(map[string][]types.PostRecord)
	var order []string
	for _, r := range rows {
		if _, ok := groups[r.PersonaSerial]; !ok {
			order = append(order, r.PersonaSerial)
		}
		groups[r.PersonaSerial] = append(groups[r.PersonaSerial], r)
	}
	return groups, order
}
