package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hihihowru/forum-autoposter-sub005/internal/breaker"
	"github.com/hihihowru/forum-autoposter-sub005/internal/ledger"
	"github.com/hihihowru/forum-autoposter-sub005/internal/platform"
	"github.com/hihihowru/forum-autoposter-sub005/internal/retry"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// worker publishes one persona's rows strictly in order. It is the only writer of
// that persona's session cache entry during a tick.
type worker struct {
	s       *Scheduler
	serial  string
	rows    []types.PostRecord
	persona types.PersonaProfile
	known   bool
	logger  zerolog.Logger

	session platform.Session
}

func (w *worker) run(ctx context.Context) []Outcome {
	settled := w.settleAccepted(ctx)
	if len(w.rows) == 0 {
		return settled
	}
	return append(settled, w.publishRows(ctx)...)
}

// settleAccepted records rows an earlier tick already published and drops them from
// w.rows, so they are never sent to the platform twice
func (w *worker) settleAccepted(ctx context.Context) []Outcome {
	var settled []Outcome
	rows := make([]types.PostRecord, 0, len(w.rows))
	for _, r := range w.rows {
		p, ok := w.s.takeAccepted(r.WorkID)
		if !ok {
			rows = append(rows, r)
			continue
		}
		w.logger.Info().Str("work_id", r.WorkID).Str("platform_post_id", p.PlatformPostID).
			Msg("recording earlier publish")
		settled = append(settled, w.record(ctx, r, p))
	}
	w.rows = rows
	return settled
}

func (w *worker) publishRows(ctx context.Context) []Outcome {
	if !w.known {
		return w.failAll(ctx, fmt.Sprintf("persona %s not found in registry", w.serial))
	}
	if !w.persona.Enabled {
		w.logger.Info().Int("rows", len(w.rows)).Msg("persona disabled, leaving rows ready")
		return w.skipFrom(0, SkipPersonaDisabled)
	}

	if err := w.ensureSession(ctx, false); err != nil {
		if breaker.IsOpen(err) {
			return w.skipFrom(0, SkipBreakerOpen)
		}
		if ctx.Err() != nil {
			return w.skipFrom(0, SkipBudget)
		}
		w.logger.Error().Err(err).Msg("login failed")
		note := "login failed: " + err.Error()
		for _, r := range w.rows {
			if aerr := w.s.ledger.Annotate(context.WithoutCancel(ctx), r.WorkID, note); aerr != nil {
				w.logger.Warn().Err(aerr).Str("work_id", r.WorkID).Msg("failed to annotate row")
			}
		}
		return w.skipFrom(0, SkipLoginFailed)
	}

	outcomes := make([]Outcome, 0, len(w.rows))
	for i, r := range w.rows {
		if ctx.Err() != nil {
			return append(outcomes, w.skipFrom(i, SkipBudget)...)
		}
		if err := w.s.pacer.Wait(ctx, w.serial); err != nil {
			return append(outcomes, w.skipFrom(i, SkipBudget)...)
		}
		if err := w.s.limiter.Wait(ctx); err != nil {
			return append(outcomes, w.skipFrom(i, SkipBudget)...)
		}

		id, err := w.publish(ctx, r)
		if breaker.IsOpen(err) {
			w.logger.Warn().Str("work_id", r.WorkID).Msg("platform circuit open, stopping persona")
			return append(outcomes, w.skipFrom(i, SkipBreakerOpen)...)
		}
		if err != nil {
			outcomes = append(outcomes, w.fail(ctx, r, err.Error()))
			continue
		}
		outcomes = append(outcomes, w.succeed(ctx, r, id))
	}
	return outcomes
}

// publish issues the call for r, logging in again once if the session was rejected.
// The call runs detached from the tick budget so it is never abandoned mid-flight.
func (w *worker) publish(ctx context.Context, r types.PostRecord) (string, error) {
	callCtx := context.WithoutCancel(ctx)

	id, err := w.s.api.Publish(callCtx, w.session.Token, r.Title, r.Body)
	if errors.Is(err, platform.ErrSessionExpired) {
		w.logger.Info().Str("work_id", r.WorkID).Msg("session expired, logging in again")
		if lerr := w.ensureSession(callCtx, true); lerr != nil {
			return "", fmt.Errorf("session refresh: %w", lerr)
		}
		id, err = w.s.api.Publish(callCtx, w.session.Token, r.Title, r.Body)
	}
	w.s.pacer.Done(w.serial)
	return id, err
}

func (w *worker) ensureSession(ctx context.Context, force bool) error {
	if !force {
		cached, ok, err := w.s.sessions.Get(ctx, w.serial)
		if err != nil {
			w.logger.Warn().Err(err).Msg("session cache read failed")
		}
		if ok && cached.Valid(w.s.clock.Now(), w.s.cfg.SessionSkew) {
			w.session = cached
			return nil
		}
	}

	session, err := w.s.api.Login(ctx, w.persona.Credentials)
	if err != nil {
		return err
	}
	w.session = session
	if err := w.s.sessions.Set(ctx, w.serial, session); err != nil {
		w.logger.Warn().Err(err).Msg("session cache write failed")
	}
	return nil
}

func (w *worker) succeed(ctx context.Context, r types.PostRecord, platformID string) Outcome {
	w.s.metrics.PublishResult(w.serial, "published")
	return w.record(ctx, r, acceptedPost{PlatformPostID: platformID, PublishedAt: w.s.clock.Now().UTC()})
}

// record writes the published transition for a post the platform accepted. When the
// write cannot land the post is remembered so the next tick retries only the write.
func (w *worker) record(ctx context.Context, r types.PostRecord, p acceptedPost) Outcome {
	change := ledger.Change{
		To:             types.StatusPublished,
		PlatformPostID: p.PlatformPostID,
		PublishedAt:    p.PublishedAt,
	}
	res := retry.Do(context.WithoutCancel(ctx), w.s.cfg.WriteRetry, func(ctx context.Context, _ int) (types.PostRecord, error) {
		rec, err := w.s.ledger.Transition(ctx, r.WorkID, change)
		var terr *ledger.TransitionError
		if errors.As(err, &terr) || ledger.IsNotFound(err) {
			return rec, retry.Permanent(err)
		}
		return rec, err
	})

	out := Outcome{WorkID: r.WorkID, PersonaSerial: w.serial, Status: types.StatusPublished, PlatformPostID: p.PlatformPostID}
	if res.Err != nil {
		var terr *ledger.TransitionError
		if !errors.As(res.Err, &terr) && !ledger.IsNotFound(res.Err) {
			w.s.rememberAccepted(r.WorkID, p)
		}
		w.logger.Error().Err(res.Err).Str("work_id", r.WorkID).Str("platform_post_id", p.PlatformPostID).
			Msg("published but ledger write failed")
		out.Error = "ledger write failed: " + res.Err.Error()
		return out
	}
	w.s.metrics.Transition(string(types.StatusPublished))
	w.logger.Info().Str("work_id", r.WorkID).Str("platform_post_id", p.PlatformPostID).Msg("published")
	return out
}

func (w *worker) fail(ctx context.Context, r types.PostRecord, msg string) Outcome {
	w.s.metrics.PublishResult(w.serial, "failed")
	out := Outcome{WorkID: r.WorkID, PersonaSerial: w.serial, Status: types.StatusPublishFailed, Error: msg}

	_, err := w.s.ledger.Transition(context.WithoutCancel(ctx), r.WorkID, ledger.Change{
		To:        types.StatusPublishFailed,
		LastError: msg,
	})
	if err != nil {
		w.logger.Error().Err(err).Str("work_id", r.WorkID).Msg("failed to record publish failure")
		out.Error = msg + "; ledger write failed: " + err.Error()
		return out
	}
	w.s.metrics.Transition(string(types.StatusPublishFailed))
	w.logger.Warn().Str("work_id", r.WorkID).Str("error", msg).Msg("publish failed")
	return out
}

func (w *worker) failAll(ctx context.Context, msg string) []Outcome {
	w.logger.Error().Int("rows", len(w.rows)).Msg(msg)
	outcomes := make([]Outcome, 0, len(w.rows))
	for _, r := range w.rows {
		outcomes = append(outcomes, w.fail(ctx, r, msg))
	}
	return outcomes
}

func (w *worker) skipFrom(i int, reason string) []Outcome {
	out := make([]Outcome, 0, len(w.rows)-i)
	for _, r := range w.rows[i:] {
		out = append(out, Outcome{WorkID: r.WorkID, PersonaSerial: w.serial, Status: types.StatusReadyToPublish, SkipReason: reason})
		w.s.metrics.PublishResult(w.serial, "skipped")
	}
	return out
}
