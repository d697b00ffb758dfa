package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hihihowru/forum-autoposter-sub005/internal/ledger"
	"github.com/hihihowru/forum-autoposter-sub005/internal/publish"
	"github.com/hihihowru/forum-autoposter-sub005/internal/schedule"
)

// ErrUnavailable marks a trigger whose backing service is not configured
var ErrUnavailable = errors.New("service unavailable")

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid username or password"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		invalid    *ErrInvalidCredentials
		validation *ErrValidation
		jobInvalid *schedule.ValidationError
		transition *ledger.TransitionError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusUnauthorized
	case errors.As(err, &validation), errors.As(err, &jobInvalid):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &transition), errors.Is(err, publish.ErrTickInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
