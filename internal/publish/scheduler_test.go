package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hihihowru/forum-autoposter-sub005/internal/ledger"
	"github.com/hihihowru/forum-autoposter-sub005/internal/platform"
	"github.com/hihihowru/forum-autoposter-sub005/internal/retry"
	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// fakeClock only moves when something sleeps on it
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type publishCall struct {
	Token string
	Title string
	At    time.Time
}

type fakeAPI struct {
	clock *fakeClock

	mu         sync.Mutex
	logins     []string
	calls      []publishCall
	loginErr   error
	failTitles map[string]error
	// expireOnce rejects the first call of each token listed
	expireOnce map[string]bool
	inflight   map[string]int
	maxInfl    map[string]int
	block      chan struct{}
	started    chan struct{}
	nextID     int
}

func newFakeAPI(clock *fakeClock) *fakeAPI {
	return &fakeAPI{
		clock:      clock,
		failTitles: map[string]error{},
		expireOnce: map[string]bool{},
		inflight:   map[string]int{},
		maxInfl:    map[string]int{},
	}
}

func (f *fakeAPI) Login(_ context.Context, credentials string) (platform.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return platform.Session{}, f.loginErr
	}
	f.logins = append(f.logins, credentials)
	token := fmt.Sprintf("tok-%s-%d", credentials, len(f.logins))
	return platform.Session{Token: token, ExpiresAt: f.clock.Now().Add(24 * time.Hour)}, nil
}

func (f *fakeAPI) Publish(_ context.Context, token, title, _ string) (string, error) {
	persona := strings.SplitN(token, "-", 3)[1]

	f.mu.Lock()
	f.inflight[persona]++
	if f.inflight[persona] > f.maxInfl[persona] {
		f.maxInfl[persona] = f.inflight[persona]
	}
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[persona]--
	if f.expireOnce[token] {
		delete(f.expireOnce, token)
		return "", platform.ErrSessionExpired
	}
	if err, ok := f.failTitles[title]; ok {
		return "", err
	}
	f.calls = append(f.calls, publishCall{Token: token, Title: title, At: f.clock.Now()})
	f.nextID++
	return fmt.Sprintf("post-%d", f.nextID), nil
}

func (f *fakeAPI) publishedTitles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Title)
	}
	return out
}

// flakyStore rejects the next rejectPublished writes that set a row to published
type flakyStore struct {
	*store.MemoryStore

	mu              sync.Mutex
	rejectPublished int
}

func (s *flakyStore) WriteRows(ctx context.Context, sheet, rng string, rows [][]string) error {
	s.mu.Lock()
	reject := s.rejectPublished > 0 && hasCell(rows, string(types.StatusPublished))
	if reject {
		s.rejectPublished--
	}
	s.mu.Unlock()
	if reject {
		return errors.New("sheets: 503 backend unavailable")
	}
	return s.MemoryStore.WriteRows(ctx, sheet, rng, rows)
}

func hasCell(rows [][]string, value string) bool {
	for _, row := range rows {
		for _, cell := range row {
			if cell == value {
				return true
			}
		}
	}
	return false
}

type staticPersonas []types.PersonaProfile

func (s staticPersonas) LoadAll(context.Context) ([]types.PersonaProfile, error) {
	return s, nil
}

func (s staticPersonas) GetBySerial(serial string) (types.PersonaProfile, error) {
	for _, p := range s {
		if p.Serial == serial {
			return p, nil
		}
	}
	return types.PersonaProfile{}, fmt.Errorf("persona %s not found", serial)
}

func kol(serial string) types.PersonaProfile {
	return types.PersonaProfile{Serial: serial, Enabled: true, Credentials: serial, MaxDailyAssignments: 5}
}

type harness struct {
	clock  *fakeClock
	ledger *ledger.Ledger
	api    *fakeAPI
	sched  *Scheduler
}

func newHarness(t *testing.T, personas staticPersonas, mutate func(*Config)) *harness {
	t.Helper()
	return newHarnessWithStore(t, store.NewMemoryStore(), personas, mutate)
}

func newHarnessWithStore(t *testing.T, st store.Store, personas staticPersonas, mutate func(*Config)) *harness {
	t.Helper()
	clock := &fakeClock{now: t0}
	l := ledger.New(st, "posts", zerolog.Nop(), ledger.WithClock(clock.Now))
	require.NoError(t, l.Init(context.Background()))

	cfg := DefaultConfig()
	cfg.RatePerSecond = 0
	cfg.WriteRetry = retry.Policy{MaxAttempts: 1}
	if mutate != nil {
		mutate(&cfg)
	}
	api := newFakeAPI(clock)
	sched := NewScheduler(l, personas, api, platform.NewMemorySessionCache(), cfg, zerolog.Nop(), WithClock(clock))
	return &harness{clock: clock, ledger: l, api: api, sched: sched}
}

// ready seeds a ready_to_publish row scheduled offset from t0
func (h *harness) ready(t *testing.T, topicID, serial, title string, offset time.Duration) string {
	t.Helper()
	ctx := context.Background()
	a := types.NewAssignment(topicID, serial, 1, t0)
	_, err := h.ledger.CreateAll(ctx, []types.Assignment{a})
	require.NoError(t, err)
	_, err = h.ledger.Transition(ctx, a.WorkID, ledger.Change{
		To:          types.StatusReadyToPublish,
		Title:       title,
		Body:        "body of " + title,
		ScheduledAt: t0.Add(offset),
	})
	require.NoError(t, err)
	return a.WorkID
}

func (h *harness) status(t *testing.T, workID string) types.PostRecord {
	t.Helper()
	rec, err := h.ledger.Get(context.Background(), workID)
	require.NoError(t, err)
	return rec
}

func TestTick_PublishesAndRecords(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, nil)
	id := h.ready(t, "t1", "p1", "標題一", -time.Minute)

	res, err := h.sched.Tick(context.Background(), TickOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Selected)
	assert.Equal(t, 1, res.Published)
	rec := h.status(t, id)
	assert.Equal(t, types.StatusPublished, rec.Status)
	assert.Equal(t, "post-1", rec.PlatformPostID)
	require.NotNil(t, rec.PublishedAt)
	assert.Empty(t, rec.LastError)
}

func TestTick_MinimumDelayPerPersona(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, func(c *Config) { c.MinDelay = 120 * time.Second })
	h.ready(t, "t1", "p1", "first", -2*time.Minute)
	h.ready(t, "t2", "p1", "second", -time.Minute)

	res, err := h.sched.Tick(context.Background(), TickOptions{})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Published)
	require.Len(t, h.api.calls, 2)
	assert.Equal(t, "first", h.api.calls[0].Title)
	assert.Equal(t, "second", h.api.calls[1].Title)
	assert.GreaterOrEqual(t, h.api.calls[1].At.Sub(h.api.calls[0].At), 120*time.Second)
}

func TestTick_MinimumDelayHoldsAcrossTicks(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, func(c *Config) { c.MinDelay = 120 * time.Second })
	h.ready(t, "t1", "p1", "first", -time.Minute)
	_, err := h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	h.ready(t, "t2", "p1", "second", 0)
	_, err = h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)

	require.Len(t, h.api.calls, 2)
	assert.GreaterOrEqual(t, h.api.calls[1].At.Sub(h.api.calls[0].At), 120*time.Second)
}

func TestTick_TimeoutBecomesPublishFailedAndIsNotRetried(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, nil)
	id := h.ready(t, "t1", "p1", "slow", -time.Minute)
	h.api.failTitles["slow"] = &platform.PublishError{Op: "publish", Timeout: true, Cause: context.DeadlineExceeded}

	res, err := h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	rec := h.status(t, id)
	assert.Equal(t, types.StatusPublishFailed, rec.Status)
	assert.Contains(t, rec.LastError, "timed out")

	delete(h.api.failTitles, "slow")
	again, err := h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Selected)
	assert.Empty(t, h.api.calls)
}

func TestTick_IdempotentReTick(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1"), kol("p2")}, func(c *Config) { c.MinDelay = 0 })
	h.ready(t, "t1", "p1", "a", -time.Minute)
	h.ready(t, "t1", "p2", "b", -time.Minute)
	h.ready(t, "t2", "p1", "c", -time.Minute)

	first, err := h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Published)

	second, err := h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Selected)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, h.api.publishedTitles())
}

func TestTick_FailedPublishedWriteIsRetriedWithoutRepublishing(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), rejectPublished: 1}
	h := newHarnessWithStore(t, st, staticPersonas{kol("p1")}, nil)
	id := h.ready(t, "t1", "p1", "only once", -time.Minute)

	first, err := h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	require.Len(t, first.Outcomes, 1)
	assert.Contains(t, first.Outcomes[0].Error, "ledger write failed")
	assert.Equal(t, []string{id}, first.Unrecorded)
	assert.Equal(t, types.StatusReadyToPublish, h.status(t, id).Status)

	h.clock.Advance(time.Hour)
	second, err := h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Selected)
	assert.Equal(t, 1, second.Published)
	assert.Empty(t, second.Unrecorded)

	rec := h.status(t, id)
	assert.Equal(t, types.StatusPublished, rec.Status)
	assert.Equal(t, "post-1", rec.PlatformPostID)
	require.NotNil(t, rec.PublishedAt)
	assert.True(t, t0.Equal(*rec.PublishedAt))
	assert.Equal(t, []string{"only once"}, h.api.publishedTitles())
	assert.Len(t, h.api.logins, 1)

	third, err := h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Zero(t, third.Selected)
	assert.Len(t, h.api.calls, 1)
}

func TestTick_SkipsFutureRowsAndHonoursCap(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, func(c *Config) { c.MinDelay = 0 })
	h.ready(t, "t1", "p1", "due-1", -3*time.Minute)
	h.ready(t, "t2", "p1", "due-2", -2*time.Minute)
	future := h.ready(t, "t3", "p1", "later", time.Hour)

	res, err := h.sched.Tick(context.Background(), TickOptions{Cap: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Selected)
	assert.Equal(t, []string{"due-1"}, h.api.publishedTitles())

	_, err = h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"due-1", "due-2"}, h.api.publishedTitles())
	assert.Equal(t, types.StatusReadyToPublish, h.status(t, future).Status)
}

func TestTick_PersonaFilter(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1"), kol("p2")}, nil)
	h.ready(t, "t1", "p1", "for-p1", -time.Minute)
	other := h.ready(t, "t1", "p2", "for-p2", -time.Minute)

	res, err := h.sched.Tick(context.Background(), TickOptions{PersonaFilter: []string{"p1"}})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)
	assert.Equal(t, types.StatusReadyToPublish, h.status(t, other).Status)
}

func TestTick_SessionReusedAndRefreshedOnExpiry(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, func(c *Config) { c.MinDelay = 0 })
	h.ready(t, "t1", "p1", "a", -time.Minute)
	_, err := h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	require.Len(t, h.api.logins, 1)

	h.ready(t, "t2", "p1", "b", 0)
	_, err = h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Len(t, h.api.logins, 1, "cached session reused")

	id := h.ready(t, "t3", "p1", "c", 0)
	h.api.expireOnce["tok-p1-1"] = true
	res, err := h.sched.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)
	assert.Len(t, h.api.logins, 2)
	assert.Equal(t, types.StatusPublished, h.status(t, id).Status)
}

func TestTick_LoginFailureLeavesRowsReady(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, nil)
	id := h.ready(t, "t1", "p1", "a", -time.Minute)
	h.api.loginErr = &platform.PublishError{Op: "login", StatusCode: 401, Message: "bad password"}

	res, err := h.sched.Tick(context.Background(), TickOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, SkipLoginFailed, res.Outcomes[0].SkipReason)
	rec := h.status(t, id)
	assert.Equal(t, types.StatusReadyToPublish, rec.Status)
	assert.Contains(t, rec.LastError, "login failed")
}

func TestTick_BreakerOpenStopsPersona(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, func(c *Config) { c.MinDelay = 0 })
	first := h.ready(t, "t1", "p1", "a", -2*time.Minute)
	second := h.ready(t, "t2", "p1", "b", -time.Minute)
	h.api.failTitles["a"] = &platform.PublishError{Op: "publish", Message: "circuit open", Cause: gobreaker.ErrOpenState}

	res, err := h.sched.Tick(context.Background(), TickOptions{})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, types.StatusReadyToPublish, h.status(t, first).Status)
	assert.Equal(t, types.StatusReadyToPublish, h.status(t, second).Status)
}

func TestTick_UnknownPersonaFailsRows(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, nil)
	id := h.ready(t, "t1", "ghost", "a", -time.Minute)

	res, err := h.sched.Tick(context.Background(), TickOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	rec := h.status(t, id)
	assert.Equal(t, types.StatusPublishFailed, rec.Status)
	assert.Contains(t, rec.LastError, "not found")
}

func TestTick_DisabledPersonaSkipped(t *testing.T) {
	p := kol("p1")
	p.Enabled = false
	h := newHarness(t, staticPersonas{p}, nil)
	id := h.ready(t, "t1", "p1", "a", -time.Minute)

	res, err := h.sched.Tick(context.Background(), TickOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, types.StatusReadyToPublish, h.status(t, id).Status)
	assert.Empty(t, h.api.logins)
}

func TestTick_ExhaustedBudgetLeavesRowsReady(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, nil)
	id := h.ready(t, "t1", "p1", "a", -time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.sched.Tick(ctx, TickOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, SkipBudget, res.Outcomes[0].SkipReason)
	assert.Equal(t, types.StatusReadyToPublish, h.status(t, id).Status)
	assert.Empty(t, h.api.calls)
}

func TestTick_RejectsOverlappingTicks(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1")}, nil)
	h.ready(t, "t1", "p1", "a", -time.Minute)
	h.api.block = make(chan struct{})
	h.api.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.sched.Tick(context.Background(), TickOptions{})
		done <- err
	}()
	<-h.api.started

	_, err := h.sched.Tick(context.Background(), TickOptions{})
	assert.ErrorIs(t, err, ErrTickInProgress)

	close(h.api.block)
	require.NoError(t, <-done)
}

func TestTick_OnePublishInFlightPerPersona(t *testing.T) {
	h := newHarness(t, staticPersonas{kol("p1"), kol("p2")}, func(c *Config) {
		c.MinDelay = 0
		c.PoolSize = 2
	})
	for i := 0; i < 4; i++ {
		h.ready(t, fmt.Sprintf("t%d", i), "p1", fmt.Sprintf("p1-%d", i), -time.Minute)
		h.ready(t, fmt.Sprintf("t%d", i), "p2", fmt.Sprintf("p2-%d", i), -time.Minute)
	}

	res, err := h.sched.Tick(context.Background(), TickOptions{})

	require.NoError(t, err)
	assert.Equal(t, 8, res.Published)
	assert.Equal(t, 1, h.api.maxInfl["p1"])
	assert.Equal(t, 1, h.api.maxInfl["p2"])
}
