package server

import (
	"encoding/json"
	"net/http"

	"github.com/hihihowru/forum-autoposter-sub005/internal/schedule"
)

// handleCreateSchedule creates a recurring publish or generate job
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req schedule.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	job, err := s.deps.Schedules.Create(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// handleListSchedules lists jobs; ?active=true drops cancelled ones
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	jobs, err := s.deps.Schedules.List(r.Context(), activeOnly)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Schedules.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelSchedule deactivates a job; the row is kept
func (s *Server) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Schedules.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
