package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Handler runs one job
type Handler func(ctx context.Context, job types.ScheduleJob) error

// Runner is the single periodic driver. Every poll it runs the due jobs one after
// another, so two jobs never overlap.
type Runner struct {
	service  *Service
	handlers map[types.JobKind]Handler
	poll     time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	// defaults run when no active job of their kind exists
	defaults map[types.JobKind]*types.ScheduleJob

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithDefaultJob runs job whenever the sheet holds no active job of its kind
func WithDefaultJob(job types.ScheduleJob) RunnerOption {
	return func(r *Runner) {
		job.Active = true
		r.defaults[job.Kind] = &job
	}
}

// WithRunnerClock overrides time.Now
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a driver polling every poll
func NewRunner(service *Service, handlers map[types.JobKind]Handler, poll time.Duration, logger zerolog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		service:  service,
		handlers: handlers,
		poll:     poll,
		logger:   logger.With().Str("component", "schedule_runner").Logger(),
		now:      time.Now,
		defaults: make(map[types.JobKind]*types.ScheduleJob),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.poll <= 0 {
		r.poll = 30 * time.Second
	}
	return r
}

// RunDue runs every job due at the current time and returns the ids that ran.
// A failing job is logged and still marked as run so it waits a full cadence.
func (r *Runner) RunDue(ctx context.Context) ([]string, error) {
	jobs, err := r.service.List(ctx, true)
	if err != nil {
		return nil, err
	}

	hasKind := make(map[types.JobKind]bool)
	for _, j := range jobs {
		hasKind[j.Kind] = true
	}
	for kind, def := range r.defaults {
		if !hasKind[kind] {
			jobs = append(jobs, *def)
		}
	}

	var ran []string
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		now := r.now()
		if !job.IsDue(now) {
			continue
		}
		handler, ok := r.handlers[job.Kind]
		if !ok {
			r.logger.Warn().Str("job_id", job.JobID).Str("kind", string(job.Kind)).Msg("no handler for job kind")
			continue
		}

		log := r.logger.With().Str("job_id", job.JobID).Str("kind", string(job.Kind)).Logger()
		log.Info().Msg("running scheduled job")
		if err := r.runOne(ctx, handler, job); err != nil {
			log.Error().Err(err).Msg("scheduled job failed")
		}
		if err := r.markRun(ctx, job, now); err != nil {
			log.Error().Err(err).Msg("failed to record job run")
		}
		ran = append(ran, job.JobID)
	}
	return ran, nil
}

func (r *Runner) runOne(ctx context.Context, h Handler, job types.ScheduleJob) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return h(ctx, job)
}

func (r *Runner) markRun(ctx context.Context, job types.ScheduleJob, at time.Time) error {
	if def, ok := r.defaults[job.Kind]; ok && def.JobID == job.JobID {
		t := at
		def.LastRunAt = &t
		return nil
	}
	_, err := r.service.MarkRun(ctx, job.JobID, at)
	return err
}

// Start launches the polling loop. It runs once immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return nil
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.poll)
		defer ticker.Stop()
		for {
			if _, err := r.RunDue(ctx); err != nil {
				r.logger.Error().Err(err).Msg("failed to list schedule jobs")
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()
	r.logger.Info().Dur("poll", r.poll).Msg("schedule runner started")
	return nil
}

// Stop halts the loop and waits for a running job to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
