package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hihihowru/forum-autoposter-sub005/internal/pipeline"
	"github.com/hihihowru/forum-autoposter-sub005/internal/publish"
	"github.com/hihihowru/forum-autoposter-sub005/internal/schedule"
	"github.com/hihihowru/forum-autoposter-sub005/internal/server"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// PublishHandler runs a publish tick bounded by the job's cap and persona filter
func (a *App) PublishHandler(t server.Ticker) schedule.Handler {
	return func(ctx context.Context, job types.ScheduleJob) error {
		res, err := t.Tick(ctx, publish.TickOptions{Cap: job.BatchCap, PersonaFilter: job.PersonaFilter})
		if err != nil {
			return err
		}
		a.Logger.Info().
			Str("job_id", job.JobID).
			Int("selected", res.Selected).
			Int("published", res.Published).
			Int("failed", res.Failed).
			Int("skipped", res.Skipped).
			Msg("scheduled publish finished")
		return nil
	}
}

// GenerateHandler refreshes topics and then runs a generation batch. Discovery
// problems are logged; the batch still works through topics already on the sheet.
func (a *App) GenerateHandler(b server.BatchRunner) schedule.Handler {
	return func(ctx context.Context, job types.ScheduleJob) error {
		if a.Discoverer != nil && len(a.Config.Discovery.Sources) > 0 {
			rep, err := a.Discoverer.Run(ctx)
			switch {
			case err != nil:
				a.Logger.Error().Err(err).Str("job_id", job.JobID).Msg("topic discovery failed")
			default:
				a.Logger.Info().Int("added", rep.Added).Int("source_errors", len(rep.Errors)).Msg("topics discovered")
			}
		}

		report, err := b.RunBatch(ctx, pipeline.BatchOptions{TopicLimit: job.BatchCap, PersonaFilter: job.PersonaFilter})
		if err != nil {
			return err
		}
		a.Logger.Info().
			Str("job_id", job.JobID).
			Str("batch_id", report.BatchID).
			Int("assigned", report.Assigned).
			Int("ready", report.Ready).
			Int("failed", report.Failed).
			Int("deferred", report.Deferred).
			Msg("scheduled generation finished")
		return nil
	}
}

// ScheduleRunner builds the periodic driver. Built-in publish and generate jobs run at
// the configured cadences whenever the sheet holds no active job of that kind.
func (a *App) ScheduleRunner() (*schedule.Runner, error) {
	handlers := make(map[types.JobKind]schedule.Handler)
	var opts []schedule.RunnerOption
	sc := a.Config.Schedule

	if p, err := a.Publisher(); err == nil {
		handlers[types.JobKindPublish] = a.PublishHandler(p)
		opts = append(opts, schedule.WithDefaultJob(defaultJob(types.JobKindPublish, sc.PublishCadence)))
	}
	if b, err := a.Batches(); err == nil {
		handlers[types.JobKindGenerate] = a.GenerateHandler(b)
		if sc.GenerateCadence > 0 {
			opts = append(opts, schedule.WithDefaultJob(defaultJob(types.JobKindGenerate, sc.GenerateCadence)))
		}
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("nothing to schedule: %w; %w", ErrPublishDisabled, ErrGenerationDisabled)
	}
	return schedule.NewRunner(a.Schedules, handlers, sc.Poll, a.Logger, opts...), nil
}

func defaultJob(kind types.JobKind, cadence time.Duration) types.ScheduleJob {
	return types.ScheduleJob{
		JobID:   "default-" + string(kind),
		Name:    "default " + string(kind),
		Kind:    kind,
		Cadence: cadence.String(),
	}
}
