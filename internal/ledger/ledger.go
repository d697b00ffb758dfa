// Package ledger persists the lifecycle of each work item as one row of the posts sheet
// and enforces the status state machine on every write.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Ledger is the PostRecord state machine over a store sheet. Every transition is a
// single-row last-write-wins update keyed by work id.
type Ledger struct {
	store  store.Store
	sheet  string
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	header store.Header
	index  map[string]int
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over sheet
func New(s store.Store, sheet string, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  s,
		sheet:  sheet,
		logger: logger.With().Str("component", "ledger").Logger(),
		now:    time.Now,
		index:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init makes sure the posts sheet carries the ledger header
func (l *Ledger) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensureHeader(ctx)
}

func (l *Ledger) ensureHeader(ctx context.Context) error {
	if l.header.Width() > 0 {
		return nil
	}
	h, err := store.EnsureHeader(ctx, l.store, l.sheet, Columns)
	if err != nil {
		return err
	}
	l.header = h
	return nil
}

func (l *Ledger) lastColumn() string {
	return store.ColumnName(l.header.Width() - 1)
}

// readAll decodes every row and rebuilds the work id index. Caller holds mu.
func (l *Ledger) readAll(ctx context.Context) ([]types.PostRecord, error) {
	if err := l.ensureHeader(ctx); err != nil {
		return nil, err
	}
	rows, err := l.store.ReadRows(ctx, l.sheet, "A2:"+l.lastColumn())
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	index := make(map[string]int, len(rows))
	records := make([]types.PostRecord, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		rowNum := i + 2
		rec, err := decodeRecord(l.header, rowNum, row)
		if err != nil {
			l.logger.Warn().Err(err).Int("row", rowNum).Msg("skipping malformed ledger row")
			if rec.WorkID != "" {
				index[rec.WorkID] = rowNum
			}
			continue
		}
		if _, dup := index[rec.WorkID]; dup {
			l.logger.Warn().Str("work_id", rec.WorkID).Int("row", rowNum).Msg("duplicate work id in ledger, keeping first")
			continue
		}
		index[rec.WorkID] = rowNum
		records = append(records, rec)
	}
	l.index = index
	return records, nil
}

// readRow reads the row currently indexed for workID, reloading the index once if the
// sheet moved underneath us. Caller holds mu.
func (l *Ledger) readRow(ctx context.Context, workID string) (int, types.PostRecord, error) {
	for attempt := 0; attempt < 2; attempt++ {
		rowNum, ok := l.index[workID]
		if !ok || attempt > 0 {
			if _, err := l.readAll(ctx); err != nil {
				return 0, types.PostRecord{}, err
			}
			if rowNum, ok = l.index[workID]; !ok {
				return 0, types.PostRecord{}, fmt.Errorf("%w: %s", ErrNotFound, workID)
			}
		}
		rows, err := l.store.ReadRows(ctx, l.sheet, store.RowRange(rowNum, l.header.Width()))
		if err != nil {
			return 0, types.PostRecord{}, fmt.Errorf("failed to read ledger row %d: %w", rowNum, err)
		}
		if len(rows) == 0 || l.header.Get(rows[0], ColWorkID) != workID {
			continue
		}
		rec, err := decodeRecord(l.header, rowNum, rows[0])
		if err != nil {
			return 0, types.PostRecord{}, err
		}
		return rowNum, rec, nil
	}
	return 0, types.PostRecord{}, fmt.Errorf("%w: %s", ErrNotFound, workID)
}

func (l *Ledger) writeRow(ctx context.Context, rowNum int, rec types.PostRecord) error {
	row := encodeRecord(l.header, rec)
	if err := l.store.WriteRows(ctx, l.sheet, store.RowRange(rowNum, l.header.Width()), [][]string{row}); err != nil {
		return fmt.Errorf("failed to write ledger row %d: %w", rowNum, err)
	}
	return nil
}

// CreateAll writes a pending_generation record per assignment in one append. Assignments whose
// work id already exists are skipped and reported through *DuplicateError.
func (l *Ledger) CreateAll(ctx context.Context, assignments []types.Assignment) ([]types.PostRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.readAll(ctx); err != nil {
		return nil, err
	}

	now := l.now()
	var created []types.PostRecord
	var rows [][]string
	var dups []string
	batch := make(map[string]bool)
	for _, a := range assignments {
		if _, exists := l.index[a.WorkID]; exists || batch[a.WorkID] {
			dups = append(dups, a.WorkID)
			continue
		}
		batch[a.WorkID] = true
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rec := types.PostRecord{
			WorkID:        a.WorkID,
			TopicID:       a.TopicID,
			PersonaSerial: a.PersonaSerial,
			Status:        types.StatusPendingGeneration,
			MatchScore:    a.MatchScore,
			CreatedAt:     createdAt,
			UpdatedAt:     now,
		}
		created = append(created, rec)
		rows = append(rows, encodeRecord(l.header, rec))
	}

	if len(rows) > 0 {
		if err := l.store.AppendRows(ctx, l.sheet, rows); err != nil {
			return nil, fmt.Errorf("failed to append ledger rows: %w", err)
		}
		l.logger.Debug().Int("records", len(rows)).Msg("created pending records")
	}
	if len(dups) > 0 {
		return created, &DuplicateError{WorkIDs: dups}
	}
	return created, nil
}

// Get returns the record for workID
func (l *Ledger) Get(ctx context.Context, workID string) (types.PostRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, rec, err := l.readRow(ctx, workID)
	return rec, err
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Statuses      []types.PostStatus
	PersonaSerial string
	TopicID       string
	Limit         int
}

func (f Filter) matches(r types.PostRecord) bool {
	if f.PersonaSerial != "" && r.PersonaSerial != f.PersonaSerial {
		return false
	}
	if f.TopicID != "" && r.TopicID != f.TopicID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// List returns records matching f, ordered by scheduled_at then created_at then work id
func (l *Ledger) List(ctx context.Context, f Filter) ([]types.PostRecord, error) {
	l.mu.Lock()
	records, err := l.readAll(ctx)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []types.PostRecord
	for _, r := range records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	sortBySchedule(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ReadyToPublish returns up to limit ready_to_publish records due at now, oldest scheduled first
func (l *Ledger) ReadyToPublish(ctx context.Context, now time.Time, limit int) ([]types.PostRecord, error) {
	ready, err := l.List(ctx, Filter{Statuses: []types.PostStatus{types.StatusReadyToPublish}})
	if err != nil {
		return nil, err
	}
	var due []types.PostRecord
	for _, r := range ready {
		if !r.ScheduledAt.IsZero() && r.ScheduledAt.After(now) {
			continue
		}
		due = append(due, r)
		if limit > 0 && len(due) == limit {
			break
		}
	}
	return due, nil
}

func sortBySchedule(records []types.PostRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.WorkID < b.WorkID
	})
}

// Change describes a transition and the fields it sets
type Change struct {
	To    types.PostStatus
	Actor Actor

	Title              string
	Body               string
	GenerationAttempts int
	ReviewFlag         string
	ScheduledAt        time.Time
	PlatformPostID     string
	PublishedAt        time.Time
	LastError          string
}

// Transition validates c against the record's persisted status and writes the new row
func (l *Ledger) Transition(ctx context.Context, workID string, c Change) (types.PostRecord, error) {
	if c.Actor == "" {
		c.Actor = ActorPipeline
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureHeader(ctx); err != nil {
		return types.PostRecord{}, err
	}
	rowNum, rec, err := l.readRow(ctx, workID)
	if err != nil {
		return types.PostRecord{}, err
	}
	if !CanTransition(rec.Status, c.To, c.Actor) {
		return rec, &TransitionError{WorkID: workID, From: rec.Status, To: c.To, Actor: c.Actor}
	}

	now := l.now()
	next := apply(rec, c, now)
	if err := l.writeRow(ctx, rowNum, next); err != nil {
		return rec, err
	}

	l.logger.Info().
		Str("work_id", workID).
		Str("persona", rec.PersonaSerial).
		Str("from", string(rec.Status)).
		Str("to", string(next.Status)).
		Str("actor", string(c.Actor)).
		Msg("post transition")
	return next, nil
}

func apply(rec types.PostRecord, c Change, now time.Time) types.PostRecord {
	from := rec.Status
	rec.Status = c.To
	rec.UpdatedAt = now
	if c.GenerationAttempts > 0 {
		rec.GenerationAttempts = c.GenerationAttempts
	}

	switch c.To {
	case types.StatusReadyToPublish:
		if from == types.StatusPendingGeneration {
			rec.Title = c.Title
			rec.Body = c.Body
			rec.ReviewFlag = c.ReviewFlag
		}
		if !c.ScheduledAt.IsZero() {
			rec.ScheduledAt = c.ScheduledAt
		}
		rec.LastError = ""
	case types.StatusGenerationFailed, types.StatusPublishFailed:
		rec.LastError = c.LastError
		if rec.LastError == "" {
			rec.LastError = string(c.To)
		}
	case types.StatusPublished:
		published := c.PublishedAt
		if published.IsZero() {
			published = now
		}
		rec.PublishedAt = &published
		rec.PlatformPostID = c.PlatformPostID
		rec.LastError = ""
	case types.StatusPendingGeneration:
		rec.LastError = ""
	case types.StatusDeleted:
		if c.LastError != "" {
			rec.LastError = c.LastError
		}
	}

	if rec.Status != types.StatusPublished {
		rec.PublishedAt = nil
	}
	return rec
}

// Annotate sets last_error without changing status. Used for problems that leave a
// record eligible for another attempt, such as a failed login.
func (l *Ledger) Annotate(ctx context.Context, workID, note string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureHeader(ctx); err != nil {
		return err
	}
	rowNum, rec, err := l.readRow(ctx, workID)
	if err != nil {
		return err
	}
	if rec.Status.IsTerminal() {
		return &TransitionError{WorkID: workID, From: rec.Status, To: rec.Status, Actor: ActorPipeline}
	}
	rec.LastError = note
	rec.UpdatedAt = l.now()
	return l.writeRow(ctx, rowNum, rec)
}

// IsNotFound reports whether err means the work id has no row
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusCounts tallies records per status
func (l *Ledger) StatusCounts(ctx context.Context) (map[types.PostStatus]int, error) {
	records, err := l.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[types.PostStatus]int, len(types.AllStatuses))
	for _, r := range records {
		counts[r.Status]++
	}
	return counts, nil
}
