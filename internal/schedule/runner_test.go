package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

func TestRunner_RunDue(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()

	pub, err := svc.Create(ctx, CreateRequest{Name: "pub", Kind: types.JobKindPublish, Cadence: "15m", BatchCap: 10})
	require.NoError(t, err)
	gen, err := svc.Create(ctx, CreateRequest{Name: "gen", Kind: types.JobKindGenerate, Cadence: "1h"})
	require.NoError(t, err)

	var calls []string
	handlers := map[types.JobKind]Handler{
		types.JobKindPublish: func(_ context.Context, job types.ScheduleJob) error {
			assert.Equal(t, 10, job.BatchCap)
			calls = append(calls, "publish")
			return nil
		},
		types.JobKindGenerate: func(context.Context, types.ScheduleJob) error {
			calls = append(calls, "generate")
			return errors.New("generation backend down")
		},
	}
	r := NewRunner(svc, handlers, time.Minute, zerolog.Nop(), WithRunnerClock(func() time.Time { return *now }))

	ran, err := r.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{pub.JobID, gen.JobID}, ran)
	assert.Equal(t, []string{"publish", "generate"}, calls)

	*now = now.Add(20 * time.Minute)
	ran, err = r.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{pub.JobID}, ran, "failed job still waits a full cadence")

	_, err = svc.Cancel(ctx, pub.JobID)
	require.NoError(t, err)
	*now = now.Add(time.Hour)
	ran, err = r.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{gen.JobID}, ran)
}

func TestRunner_DefaultJobUsedOnlyWithoutActiveJobs(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()

	ticks := 0
	handlers := map[types.JobKind]Handler{
		types.JobKindPublish: func(context.Context, types.ScheduleJob) error {
			ticks++
			return nil
		},
	}
	r := NewRunner(svc, handlers, time.Minute, zerolog.Nop(),
		WithRunnerClock(func() time.Time { return *now }),
		WithDefaultJob(types.ScheduleJob{JobID: "default-publish", Kind: types.JobKindPublish, Cadence: "15m"}))

	ran, err := r.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default-publish"}, ran)

	*now = now.Add(5 * time.Minute)
	ran, err = r.RunDue(ctx)
	require.NoError(t, err)
	assert.Empty(t, ran)

	job, err := svc.Create(ctx, CreateRequest{Name: "pub", Kind: types.JobKindPublish, Cadence: "30m"})
	require.NoError(t, err)
	ran, err = r.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{job.JobID}, ran)
	assert.Equal(t, 2, ticks)
}

func TestRunner_RecoversFromPanickingJob(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateRequest{Name: "pub", Kind: types.JobKindPublish, Cadence: "15m"})
	require.NoError(t, err)

	r := NewRunner(svc, map[types.JobKind]Handler{
		types.JobKindPublish: func(context.Context, types.ScheduleJob) error { panic("boom") },
	}, time.Minute, zerolog.Nop(), WithRunnerClock(func() time.Time { return *now }))

	ran, err := r.RunDue(ctx)
	require.NoError(t, err)
	assert.Len(t, ran, 1)
}

func TestRunner_StartStop(t *testing.T) {
	svc, _, _ := newTestService(t)
	done := make(chan struct{}, 1)
	r := NewRunner(svc, map[types.JobKind]Handler{
		types.JobKindPublish: func(context.Context, types.ScheduleJob) error {
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	}, time.Hour, zerolog.Nop(), WithDefaultJob(types.ScheduleJob{JobID: "default-publish", Kind: types.JobKindPublish, Cadence: "15m"}))

	require.NoError(t, r.Start(context.Background()))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not run on start")
	}
	r.Stop()
	r.Stop()
}
