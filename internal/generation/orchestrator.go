package generation

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/hihihowru/forum-autoposter-sub005/internal/breaker"
	"github.com/hihihowru/forum-autoposter-sub005/internal/llm"
	"github.com/hihihowru/forum-autoposter-sub005/internal/metrics"
	"github.com/hihihowru/forum-autoposter-sub005/internal/retry"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Config bounds one work item's generation
type Config struct {
	// TitleRetryMax is the number of extra calls made when a title collides
	TitleRetryMax int
	// Retry governs transport errors and quality-gate rejections
	Retry         retry.Policy
	CallTimeout   time.Duration
	MinBodyChars  int
	MaxTitleChars int
}

// DefaultConfig returns the standard generation bounds
func DefaultConfig() Config {
	return Config{
		TitleRetryMax: 3,
		Retry:         retry.DefaultPolicy,
		CallTimeout:   60 * time.Second,
		MinBodyChars:  80,
		MaxTitleChars: 80,
	}
}

// Result is the outcome of generating one work item. Record is ready_to_publish on
// success and generation_failed when Failure is set; a Deferred item has no record.
// Cancelled marks a deferral caused by the caller's context rather than the breaker.
type Result struct {
	Record    types.PostRecord
	Failure   *Failure
	Deferred  bool
	Cancelled bool
}

// Orchestrator runs generation for one batch at a time
type Orchestrator struct {
	gen       Generator
	cfg       Config
	cb        *gobreaker.CircuitBreaker
	metrics   *metrics.Registry
	logger    zerolog.Logger
	retryable func(error) bool
	now       func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithBreaker replaces the default breaker
func WithBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(o *Orchestrator) { o.cb = cb }
}

// WithMetrics records attempts and outcomes on m
func WithMetrics(m *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRetryable overrides the transport error classifier
func WithRetryable(fn func(error) bool) Option {
	return func(o *Orchestrator) { o.retryable = fn }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator over gen
func NewOrchestrator(gen Generator, cfg Config, logger zerolog.Logger, opts ...Option) *Orchestrator {
	logger = logger.With().Str("component", "generation").Logger()
	o := &Orchestrator{
		gen:       gen,
		cfg:       cfg,
		logger:    logger,
		retryable: llm.IsRetryable,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cb == nil {
		o.cb = breaker.New("generation", breaker.DefaultSettings, logger)
	}
	return o
}

// Generate produces content for a, retrying transport errors under the configured
// policy and title collisions against used up to TitleRetryMax times. A successful
// title is added to used.
func (o *Orchestrator) Generate(ctx context.Context, a types.Assignment, topic types.Topic, persona types.PersonaProfile, used *TitleSet) Result {
	log := o.logger.With().Str("work_id", a.WorkID).Str("persona", a.PersonaSerial).Logger()

	var (
		content  Content
		flag     string
		have     bool
		attempts int
	)
	for round := 0; round <= o.cfg.TitleRetryMax; round++ {
		req := Request{
			WorkID:        a.WorkID,
			Topic:         topic,
			Persona:       persona,
			MaxTitleChars: o.cfg.MaxTitleChars,
			MinBodyChars:  o.cfg.MinBodyChars,
		}
		if round > 0 {
			req.Diversify = true
			req.AvoidTitles = used.Titles()
		}

		res := o.call(ctx, req)
		attempts += res.Attempts
		if res.Err != nil {
			if ctx.Err() != nil {
				// a cancelled run is not a failure of the work item
				log.Warn().Err(ctx.Err()).Int("attempts", attempts).Msg("generation cancelled, leaving work item pending")
				o.metrics.GenerationResult("cancelled")
				return Result{Deferred: true, Cancelled: true}
			}
			if have {
				// keep the colliding content rather than lose the work item
				log.Warn().Err(res.Err).Int("round", round).Msg("diversify retry failed, keeping colliding title")
				break
			}
			if breaker.IsOpen(res.Err) {
				log.Warn().Msg("generation breaker open, deferring work item")
				o.metrics.GenerationResult("deferred")
				return Result{Deferred: true}
			}
			failure := &Failure{
				WorkID:   a.WorkID,
				Attempts: attempts,
				Timeout:  errors.Is(res.Err, context.DeadlineExceeded),
				Cause:    res.Err,
			}
			log.Error().Err(res.Err).Int("attempts", attempts).Msg("generation failed")
			o.metrics.GenerationResult("failed")
			return Result{Failure: failure, Record: o.failedRecord(a, failure)}
		}

		content, have = res.Value, true
		content.Title, flag = o.clampTitle(content.Title)
		if !used.Contains(content.Title) {
			break
		}
		log.Info().Str("title", content.Title).Int("round", round).Msg("title collides within batch")
	}

	rec := o.baseRecord(a)
	rec.Status = types.StatusReadyToPublish
	rec.Title = content.Title
	rec.ReviewFlag = flag
	rec.Body = content.Body
	rec.GenerationAttempts = attempts

	if !used.Add(rec.Title) {
		rec.ReviewFlag = types.ReviewFlagDuplicateTitle
		log.Warn().Str("title", rec.Title).Msg("title retries exhausted, accepting flagged duplicate")
		o.metrics.GenerationResult("flagged")
	} else {
		o.metrics.GenerationResult("ready")
	}
	return Result{Record: rec}
}

// call runs one generation request under the retry policy
func (o *Orchestrator) call(ctx context.Context, req Request) retry.Result[Content] {
	return retry.Do(ctx, o.cfg.Retry, func(ctx context.Context, attempt int) (Content, error) {
		callCtx := ctx
		if o.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
			defer cancel()
		}

		start := time.Now()
		v, err := o.cb.Execute(func() (interface{}, error) {
			return o.gen.GenerateContent(callCtx, req)
		})
		o.metrics.ObserveCall("generation", "generate", start, err)

		switch {
		case breaker.IsOpen(err):
			o.metrics.GenerationAttempt("breaker_open")
			return Content{}, retry.Permanent(err)
		case err != nil:
			if errors.Is(err, context.DeadlineExceeded) {
				o.metrics.GenerationAttempt("timeout")
			} else {
				o.metrics.GenerationAttempt("error")
			}
			o.logger.Debug().Err(err).Str("work_id", req.WorkID).Int("attempt", attempt).Msg("generation attempt failed")
			if ctx.Err() != nil || !o.retryable(err) {
				return Content{}, retry.Permanent(err)
			}
			return Content{}, err
		}

		content := v.(Content)
		if qerr := o.checkQuality(content); qerr != nil {
			o.metrics.GenerationAttempt("quality")
			return Content{}, qerr
		}
		o.metrics.GenerationAttempt("ok")
		return content, nil
	})
}

func (o *Orchestrator) checkQuality(c Content) error {
	if types.NormalizeTitle(c.Title) == "" {
		return &QualityError{Message: "empty title"}
	}
	if o.cfg.MinBodyChars > 0 && utf8.RuneCountInString(c.Body) < o.cfg.MinBodyChars {
		return &QualityError{Message: fmt.Sprintf("body shorter than %d characters", o.cfg.MinBodyChars)}
	}
	return nil
}

// clampTitle truncates an overlong title and flags it for review
func (o *Orchestrator) clampTitle(title string) (string, string) {
	if o.cfg.MaxTitleChars <= 0 || utf8.RuneCountInString(title) <= o.cfg.MaxTitleChars {
		return title, ""
	}
	runes := []rune(title)
	return string(runes[:o.cfg.MaxTitleChars]), types.ReviewFlagQualityGate
}

func (o *Orchestrator) baseRecord(a types.Assignment) types.PostRecord {
	now := o.now().UTC()
	return types.PostRecord{
		WorkID:        a.WorkID,
		TopicID:       a.TopicID,
		PersonaSerial: a.PersonaSerial,
		MatchScore:    a.MatchScore,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     now,
	}
}

func (o *Orchestrator) failedRecord(a types.Assignment, f *Failure) types.PostRecord {
	rec := o.baseRecord(a)
	rec.Status = types.StatusGenerationFailed
	rec.GenerationAttempts = f.Attempts
	rec.LastError = f.Error()
	return rec
}
