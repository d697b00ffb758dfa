package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hihihowru/forum-autoposter-sub005/internal/ledger"
	"github.com/hihihowru/forum-autoposter-sub005/internal/publish"
	"github.com/hihihowru/forum-autoposter-sub005/internal/schedule"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid credentials", &ErrInvalidCredentials{}, http.StatusUnauthorized},
		{"request validation", &ErrValidation{Field: "cap", Message: "must be >= 0"}, http.StatusBadRequest},
		{"schedule validation", &schedule.ValidationError{Field: "cadence", Message: "too short"}, http.StatusBadRequest},
		{"schedule not found", fmt.Errorf("cancel: %w", schedule.ErrNotFound), http.StatusNotFound},
		{"post not found", ledger.ErrNotFound, http.StatusNotFound},
		{"illegal transition", &ledger.TransitionError{WorkID: "t1::100", From: types.StatusPublished, To: types.StatusDeleted}, http.StatusConflict},
		{"tick in progress", publish.ErrTickInProgress, http.StatusConflict},
		{"unavailable", fmt.Errorf("publishing: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
