package server

import (
	"net/http"
	"strconv"

	"github.com/hihihowru/forum-autoposter-sub005/internal/ledger"
	"github.com/hihihowru/forum-autoposter-sub005/internal/server/middleware"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// maxListLimit caps GET /posts
const maxListLimit = 500

// handleListPosts lists ledger rows filtered by status, persona and topic
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.Filter{
		PersonaSerial: q.Get("persona"),
		TopicID:       q.Get("topic"),
		Limit:         100,
	}
	for _, raw := range splitList(q.Get("status")) {
		status := types.PostStatus(raw)
		if !status.IsValid() {
			writeError(w, http.StatusBadRequest, "unknown status: "+raw)
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = n
	}

	posts, err := s.deps.Ledger.List(r.Context(), filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts, "count": len(posts)})
}

// handlePostStats returns the row count per status
func (s *Server) handlePostStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Ledger.StatusCounts(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make(map[string]int, len(types.AllStatuses))
	total := 0
	for _, st := range types.AllStatuses {
		out[string(st)] = counts[st]
		total += counts[st]
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": out, "total": total})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Ledger.Get(r.Context(), r.PathValue("work_id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeletePost marks a row deleted. Published rows are refused.
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Ledger.Transition(r.Context(), r.PathValue("work_id"), ledger.Change{
		To:        types.StatusDeleted,
		Actor:     ledger.ActorOperator,
		LastError: "deleted by " + operatorName(r),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRequeuePost sends a failed row back one stage: generation failures to
// pending_generation, publish failures to ready_to_publish due now.
func (s *Server) handleRequeuePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workID := r.PathValue("work_id")

	current, err := s.deps.Ledger.Get(ctx, workID)
	if err != nil {
		s.fail(w, err)
		return
	}

	change := ledger.Change{Actor: ledger.ActorOperator}
	switch current.Status {
	case types.StatusGenerationFailed:
		change.To = types.StatusPendingGeneration
	case types.StatusPublishFailed:
		change.To = types.StatusReadyToPublish
		change.ScheduledAt = s.now()
	default:
		s.fail(w, &ledger.TransitionError{WorkID: workID, From: current.Status, To: current.Status, Actor: ledger.ActorOperator})
		return
	}

	rec, err := s.deps.Ledger.Transition(ctx, workID, change)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info().Str("work_id", workID).Str("by", operatorName(r)).Str("to", string(rec.Status)).Msg("post requeued")
	writeJSON(w, http.StatusOK, rec)
}

func operatorName(r *http.Request) string {
	subject, err := middleware.GetSubject(r)
	if err != nil {
		return "operator"
	}
	return subject
}
