package types

import "time"

// JobKind selects what a recurring job runs
type JobKind string

// JobKind constants
const (
	JobKindPublish  JobKind = "publish"
	JobKindGenerate JobKind = "generate"
)

// ScheduleJob is an operator-managed recurring job
type ScheduleJob struct {
	JobID         string     `json:"job_id"`
	Name          string     `json:"name"`
	Kind          JobKind    `json:"kind"`
	Cadence       string     `json:"cadence"`
	BatchCap      int        `json:"batch_cap"`
	PersonaFilter []string   `json:"persona_filter,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
}

// CadenceDuration parses the job cadence; invalid cadences return zero
func (j ScheduleJob) CadenceDuration() time.Duration {
	d, err := time.ParseDuration(j.Cadence)
	if err != nil {
		return 0
	}
	return d
}

// IsDue reports whether the job should run at now
func (j ScheduleJob) IsDue(now time.Time) bool {
	if !j.Active {
		return false
	}
	cadence := j.CadenceDuration()
	if cadence <= 0 {
		return false
	}
	if j.LastRunAt == nil {
		return true
	}
	return !now.Before(j.LastRunAt.Add(cadence))
}

// MatchesPersona reports whether serial passes the job's persona filter
func (j ScheduleJob) MatchesPersona(serial string) bool {
	if len(j.PersonaFilter) == 0 {
		return true
	}
	for _, s := range j.PersonaFilter {
		if s == serial {
			return true
		}
	}
	return false
}
