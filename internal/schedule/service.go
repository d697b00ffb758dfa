// Package schedule manages the operator's recurring jobs and the periodic driver that runs them.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// MinCadence is the shortest accepted job cadence
const MinCadence = time.Minute

// Column names of the schedules sheet
const (
	ColJobID         = "job_id"
	ColName          = "name"
	ColKind          = "kind"
	ColCadence       = "cadence"
	ColBatchCap      = "batch_cap"
	ColPersonaFilter = "persona_filter"
	ColActive        = "active"
	ColCreatedAt     = "created_at"
	ColCancelledAt   = "cancelled_at"
	ColLastRunAt     = "last_run_at"
)

// Columns is the schedules sheet layout
var Columns = []string{
	ColJobID, ColName, ColKind, ColCadence, ColBatchCap, ColPersonaFilter,
	ColActive, ColCreatedAt, ColCancelledAt, ColLastRunAt,
}

// CreateRequest describes a new recurring job
type CreateRequest struct {
	Name          string        `json:"name" validate:"required,max=100"`
	Kind          types.JobKind `json:"kind" validate:"required,oneof=publish generate"`
	Cadence       string        `json:"cadence" validate:"required,cadence"`
	BatchCap      int           `json:"batch_cap" validate:"gte=0,lte=500"`
	PersonaFilter []string      `json:"persona_filter,omitempty" validate:"dive,required"`
}

// Service is the CRUD surface over schedule rows
type Service struct {
	store     store.Store
	sheet     string
	logger    zerolog.Logger
	validator *validator.Validate
	now       func() time.Time

	mu     sync.Mutex
	header store.Header
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a schedule service over sheet
func NewService(s store.Store, sheet string, logger zerolog.Logger, opts ...Option) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cadence", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= MinCadence
	})
	svc := &Service{
		store:     s,
		sheet:     sheet,
		logger:    logger.With().Str("component", "schedule").Logger(),
		validator: v,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Init makes sure the sheet carries the schedules header
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureHeader(ctx)
}

func (s *Service) ensureHeader(ctx context.Context) error {
	if s.header.Width() > 0 {
		return nil
	}
	h, err := store.EnsureHeader(ctx, s.store, s.sheet, Columns)
	if err != nil {
		return err
	}
	s.header = h
	return nil
}

// Create validates req and appends an active job
func (s *Service) Create(ctx context.Context, req CreateRequest) (types.ScheduleJob, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Cadence = strings.TrimSpace(req.Cadence)
	if err := s.validator.Struct(req); err != nil {
		return types.ScheduleJob{}, toValidationError(err)
	}

	job := types.ScheduleJob{
		JobID:         uuid.New().String(),
		Name:          req.Name,
		Kind:          req.Kind,
		Cadence:       req.Cadence,
		BatchCap:      req.BatchCap,
		PersonaFilter: req.PersonaFilter,
		Active:        true,
		CreatedAt:     s.now().UTC().Truncate(time.Second),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureHeader(ctx); err != nil {
		return types.ScheduleJob{}, err
	}
	if err := s.store.AppendRows(ctx, s.sheet, [][]string{encode(s.header, job)}); err != nil {
		return types.ScheduleJob{}, fmt.Errorf("failed to append schedule job: %w", err)
	}
	s.logger.Info().Str("job_id", job.JobID).Str("kind", string(job.Kind)).Str("cadence", job.Cadence).Msg("schedule job created")
	return job, nil
}

// List returns jobs in sheet order, optionally only active ones
func (s *Service) List(ctx context.Context, activeOnly bool) ([]types.ScheduleJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.ScheduleJob, 0, len(rows))
	for _, r := range rows {
		if activeOnly && !r.job.Active {
			continue
		}
		out = append(out, r.job)
	}
	return out, nil
}

// Get returns one job
func (s *Service) Get(ctx context.Context, jobID string) (types.ScheduleJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.find(ctx, jobID)
	return r.job, err
}

// Cancel deactivates a job. Cancelling an inactive job is a no-op.
func (s *Service) Cancel(ctx context.Context, jobID string) (types.ScheduleJob, error) {
	return s.update(ctx, jobID, func(j *types.ScheduleJob) bool {
		if !j.Active {
			return false
		}
		now := s.now().UTC().Truncate(time.Second)
		j.Active = false
		j.CancelledAt = &now
		return true
	})
}

// MarkRun records that a job ran at at
func (s *Service) MarkRun(ctx context.Context, jobID string, at time.Time) (types.ScheduleJob, error) {
	return s.update(ctx, jobID, func(j *types.ScheduleJob) bool {
		t := at.UTC().Truncate(time.Second)
		j.LastRunAt = &t
		return true
	})
}

func (s *Service) update(ctx context.Context, jobID string, fn func(*types.ScheduleJob) bool) (types.ScheduleJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.find(ctx, jobID)
	if err != nil {
		return types.ScheduleJob{}, err
	}
	if !fn(&r.job) {
		return r.job, nil
	}
	rng := store.RowRange(r.num, s.header.Width())
	if err := s.store.WriteRows(ctx, s.sheet, rng, [][]string{encode(s.header, r.job)}); err != nil {
		return types.ScheduleJob{}, fmt.Errorf("failed to write schedule job %s: %w", jobID, err)
	}
	return r.job, nil
}

type row struct {
	num int
	job types.ScheduleJob
}

func (s *Service) find(ctx context.Context, jobID string) (row, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return row{}, err
	}
	for _, r := range rows {
		if r.job.JobID == jobID {
			return r, nil
		}
	}
	return row{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
}

// readAll decodes every row. Caller holds mu.
func (s *Service) readAll(ctx context.Context) ([]row, error) {
	if err := s.ensureHeader(ctx); err != nil {
		return nil, err
	}
	cells, err := s.store.ReadRows(ctx, s.sheet, "A2:"+store.ColumnName(s.header.Width()-1))
	if err != nil {
		return nil, fmt.Errorf("failed to read schedules: %w", err)
	}
	out := make([]row, 0, len(cells))
	for i, c := range cells {
		job, err := decode(s.header, c)
		if err != nil {
			s.logger.Warn().Err(err).Int("row", i+2).Msg("skipping malformed schedule row")
			continue
		}
		if job.JobID == "" {
			continue
		}
		out = append(out, row{num: i + 2, job: job})
	}
	return out, nil
}

func encode(h store.Header, j types.ScheduleJob) []string {
	values := map[string]string{
		ColJobID:         j.JobID,
		ColName:          j.Name,
		ColKind:          string(j.Kind),
		ColCadence:       j.Cadence,
		ColBatchCap:      strconv.Itoa(j.BatchCap),
		ColPersonaFilter: types.JoinList(j.PersonaFilter),
		ColActive:        strconv.FormatBool(j.Active),
		ColCreatedAt:     j.CreatedAt.UTC().Format(time.RFC3339),
	}
	if j.CancelledAt != nil {
		values[ColCancelledAt] = j.CancelledAt.UTC().Format(time.RFC3339)
	}
	if j.LastRunAt != nil {
		values[ColLastRunAt] = j.LastRunAt.UTC().Format(time.RFC3339)
	}
	return h.Encode(values)
}

func decode(h store.Header, c []string) (types.ScheduleJob, error) {
	j := types.ScheduleJob{
		JobID:         h.Get(c, ColJobID),
		Name:          h.Get(c, ColName),
		Kind:          types.JobKind(h.Get(c, ColKind)),
		Cadence:       h.Get(c, ColCadence),
		PersonaFilter: splitSerials(h.Get(c, ColPersonaFilter)),
	}
	var err error
	if v := h.Get(c, ColBatchCap); v != "" {
		if j.BatchCap, err = strconv.Atoi(v); err != nil {
			return j, fmt.Errorf("job %s: bad batch_cap: %w", j.JobID, err)
		}
	}
	if v := h.Get(c, ColActive); v != "" {
		if j.Active, err = strconv.ParseBool(v); err != nil {
			return j, fmt.Errorf("job %s: bad active flag: %w", j.JobID, err)
		}
	}
	if v := h.Get(c, ColCreatedAt); v != "" {
		if j.CreatedAt, err = time.Parse(time.RFC3339, v); err != nil {
			return j, fmt.Errorf("job %s: bad created_at: %w", j.JobID, err)
		}
	}
	for col, dst := range map[string]**time.Time{ColCancelledAt: &j.CancelledAt, ColLastRunAt: &j.LastRunAt} {
		v := h.Get(c, col)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return j, fmt.Errorf("job %s: bad %s: %w", j.JobID, col, err)
		}
		*dst = &t
	}
	return j, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Message: "failed " + fe.Tag() + " check", Cause: err}
	}
	return &ValidationError{Message: err.Error(), Cause: err}
}

// splitSerials parses a persona filter cell. Serials keep their case.
func splitSerials(cell string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(cell, func(r rune) bool { return r == ',' || r == '|' || r == ';' }) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
