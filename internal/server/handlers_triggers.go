package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hihihowru/forum-autoposter-sub005/internal/pipeline"
	"github.com/hihihowru/forum-autoposter-sub005/internal/publish"
)

// TickRequest is the body of POST /ticks
type TickRequest struct {
	Cap           int      `json:"cap"`
	PersonaFilter []string `json:"persona_filter,omitempty"`
}

// BatchRequest is the body of POST /batches
type BatchRequest struct {
	TopicLimit    int      `json:"topic_limit"`
	PersonaFilter []string `json:"persona_filter,omitempty"`
}

// decodeOptional decodes a JSON body that may be empty
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleTick runs one publish tick inline and returns its result
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req TickRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Cap < 0 {
		s.fail(w, &ErrValidation{Field: "cap", Message: "must not be negative"})
		return
	}

	result, err := s.deps.Ticker.Tick(r.Context(), publish.TickOptions{Cap: req.Cap, PersonaFilter: req.PersonaFilter})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request) (BatchRequest, bool) {
	var req BatchRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return req, false
	}
	if req.TopicLimit < 0 {
		s.fail(w, &ErrValidation{Field: "topic_limit", Message: "must not be negative"})
		return req, false
	}
	return req, true
}

// handleBatch runs one assignment and generation batch inline
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}

	report, err := s.deps.Batches.RunBatch(r.Context(), pipeline.BatchOptions{
		TopicLimit:    req.TopicLimit,
		PersonaFilter: req.PersonaFilter,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleBatchStream runs a batch and streams progress as Server-Sent Events
func (s *Server) handleBatchStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	report, err := s.deps.Batches.RunBatch(r.Context(), pipeline.BatchOptions{
		TopicLimit:    req.TopicLimit,
		PersonaFilter: req.PersonaFilter,
		OnProgress: func(e pipeline.ProgressEvent) {
			if err := sse.WriteEvent("step", e); err != nil {
				s.logger.Debug().Err(err).Msg("progress event dropped")
			}
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("streamed batch failed")
		sse.WriteError(err.Error())
		return
	}
	sse.WriteComplete(report)
}
