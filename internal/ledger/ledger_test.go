package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	l := New(mem, "posts", zerolog.Nop(), WithClock(func() time.Time { return t0 }))
	require.NoError(t, l.Init(context.Background()))
	return l, mem
}

func mustCreate(t *testing.T, l *Ledger, topicID, serial string) types.PostRecord {
	t.Helper()
	recs, err := l.CreateAll(context.Background(), []types.Assignment{types.NewAssignment(topicID, serial, 1, t0)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func TestLedger_CreateAndGet(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	created := mustCreate(t, l, "topic-1", "200")
	assert.Equal(t, types.StatusPendingGeneration, created.Status)

	got, err := l.Get(ctx, "topic-1::200")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = l.Get(ctx, "topic-1::999")
	assert.True(t, IsNotFound(err))
}

func TestLedger_CreateAllRejectsDuplicates(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	mustCreate(t, l, "topic-1", "200")

	recs, err := l.CreateAll(ctx, []types.Assignment{
		types.NewAssignment("topic-1", "200", 1, t0),
		types.NewAssignment("topic-1", "201", 1, t0),
		types.NewAssignment("topic-1", "201", 1, t0),
	})
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, []string{"topic-1::200", "topic-1::201"}, dup.WorkIDs)
	require.Len(t, recs, 1)
	assert.Equal(t, "topic-1::201", recs[0].WorkID)

	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLedger_HappyPathTransitions(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	mustCreate(t, l, "topic-1", "200")

	ready, err := l.Transition(ctx, "topic-1::200", Change{
		To: types.StatusReadyToPublish, Title: "台積電法說會重點", Body: "body", GenerationAttempts: 2,
		ScheduledAt: t0.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "台積電法說會重點", ready.Title)
	assert.Equal(t, 2, ready.GenerationAttempts)
	assert.Nil(t, ready.PublishedAt)

	published, err := l.Transition(ctx, "topic-1::200", Change{To: types.StatusPublished, PlatformPostID: "p-77"})
	require.NoError(t, err)
	require.NotNil(t, published.PublishedAt)
	assert.Equal(t, t0, *published.PublishedAt)
	assert.Equal(t, "p-77", published.PlatformPostID)

	stored, err := l.Get(ctx, "topic-1::200")
	require.NoError(t, err)
	assert.Equal(t, published, stored)

	// published is final, for every actor
	for _, to := range types.AllStatuses {
		_, err := l.Transition(ctx, "topic-1::200", Change{To: to, Actor: ActorOperator})
		var te *TransitionError
		assert.ErrorAs(t, err, &te, "published -> %s", to)
	}
}

func TestLedger_IllegalSkipRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	mustCreate(t, l, "topic-1", "200")

	_, err := l.Transition(ctx, "topic-1::200", Change{To: types.StatusPublished, PlatformPostID: "x"})
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.StatusPendingGeneration, te.From)

	_, err = l.Transition(ctx, "topic-1::200", Change{To: types.StatusDeleted})
	assert.ErrorAs(t, err, &te, "pipeline cannot delete")

	rec, err := l.Get(ctx, "topic-1::200")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPendingGeneration, rec.Status)
}

func TestLedger_FailureRecordsLastError(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	mustCreate(t, l, "topic-1", "200")
	mustCreate(t, l, "topic-1", "201")

	failed, err := l.Transition(ctx, "topic-1::200", Change{
		To: types.StatusGenerationFailed, LastError: "generation: context deadline exceeded", GenerationAttempts: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "generation: context deadline exceeded", failed.LastError)

	_, err = l.Transition(ctx, "topic-1::201", Change{To: types.StatusReadyToPublish, Title: "t", Body: "b"})
	require.NoError(t, err)
	pf, err := l.Transition(ctx, "topic-1::201", Change{To: types.StatusPublishFailed})
	require.NoError(t, err)
	assert.NotEmpty(t, pf.LastError)

	// operator requeue clears the error
	requeued, err := l.Transition(ctx, "topic-1::201", Change{To: types.StatusReadyToPublish, Actor: ActorOperator})
	require.NoError(t, err)
	assert.Empty(t, requeued.LastError)
	assert.Equal(t, "t", requeued.Title)

	deleted, err := l.Transition(ctx, "topic-1::200", Change{To: types.StatusDeleted, Actor: ActorOperator})
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeleted, deleted.Status)
}

func TestLedger_ReadyToPublishOrderingAndEligibility(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	schedule := map[string]time.Duration{"a": 3 * time.Minute, "b": time.Minute, "c": 2 * time.Minute, "d": 2 * time.Hour}
	for _, serial := range []string{"a", "b", "c", "d"} {
		mustCreate(t, l, "topic-1", serial)
		_, err := l.Transition(ctx, "topic-1::"+serial, Change{
			To: types.StatusReadyToPublish, Title: serial, Body: "b", ScheduledAt: t0.Add(schedule[serial]),
		})
		require.NoError(t, err)
	}
	mustCreate(t, l, "topic-2", "a")

	due, err := l.ReadyToPublish(ctx, t0.Add(time.Hour), 0)
	require.NoError(t, err)
	var order []string
	for _, r := range due {
		order = append(order, r.PersonaSerial)
	}
	assert.Equal(t, []string{"b", "c", "a"}, order)

	capped, err := l.ReadyToPublish(ctx, t0.Add(time.Hour), 2)
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}

func TestLedger_PublishedAtOnlyWhenPublished(t *testing.T) {
	l, mem := newTestLedger(t)
	ctx := context.Background()

	// a hand-edited row carries a stray published_at
	mem.Seed("posts", [][]string{
		Columns,
		{"topic-9::300", "topic-9", "300", "publish_failed", "t", "b", "1", "1", "", "", "2026-01-01T00:00:00Z", "", "timeout", "", ""},
	})
	rec, err := l.Transition(ctx, "topic-9::300", Change{To: types.StatusReadyToPublish, Actor: ActorOperator})
	require.NoError(t, err)
	assert.Nil(t, rec.PublishedAt)

	rows, err := mem.ReadRows(ctx, "posts", "K2")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLedger_FollowsRowsMovedByHand(t *testing.T) {
	l, mem := newTestLedger(t)
	ctx := context.Background()
	mustCreate(t, l, "topic-1", "a")
	mustCreate(t, l, "topic-1", "b")
	_, err := l.Get(ctx, "topic-1::b")
	require.NoError(t, err)

	// someone sorts the sheet so the rows swap places
	rows, err := mem.ReadRows(ctx, "posts", "")
	require.NoError(t, err)
	rows[1], rows[2] = rows[2], rows[1]
	mem.Seed("posts", rows)

	rec, err := l.Transition(ctx, "topic-1::b", Change{To: types.StatusReadyToPublish, Title: "B", Body: "x"})
	require.NoError(t, err)
	assert.Equal(t, "b", rec.PersonaSerial)

	a, err := l.Get(ctx, "topic-1::a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPendingGeneration, a.Status)
}

func TestLedger_AnnotateKeepsStatus(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	mustCreate(t, l, "topic-1", "a")
	_, err := l.Transition(ctx, "topic-1::a", Change{To: types.StatusReadyToPublish, Title: "t", Body: "b"})
	require.NoError(t, err)

	require.NoError(t, l.Annotate(ctx, "topic-1::a", "login failed: 401"))
	rec, err := l.Get(ctx, "topic-1::a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusReadyToPublish, rec.Status)
	assert.Equal(t, "login failed: 401", rec.LastError)
}

func TestLedger_MalformedRowsSkipped(t *testing.T) {
	l, mem := newTestLedger(t)
	mem.Seed("posts", [][]string{
		Columns,
		{"topic-1::a", "topic-1", "a", "posted"},
		{"topic-1::b", "", "", "pending_generation"},
	})
	recs, err := l.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "topic-1", recs[0].TopicID)
	assert.Equal(t, "b", recs[0].PersonaSerial)
}
