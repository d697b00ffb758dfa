package app

import (
	"context"
	"fmt"

	"github.com/hihihowru/forum-autoposter-sub005/internal/pipeline"
	"github.com/hihihowru/forum-autoposter-sub005/internal/publish"
	"github.com/hihihowru/forum-autoposter-sub005/internal/server"
	"github.com/hihihowru/forum-autoposter-sub005/internal/server/ratelimit"
)

// unavailable stands in for triggers whose service is not configured
type unavailable struct {
	reason error
}

func (u unavailable) Tick(context.Context, publish.TickOptions) (*publish.BatchResult, error) {
	return nil, fmt.Errorf("%w: %w", server.ErrUnavailable, u.reason)
}

func (u unavailable) RunBatch(context.Context, pipeline.BatchOptions) (*pipeline.Report, error) {
	return nil, fmt.Errorf("%w: %w", server.ErrUnavailable, u.reason)
}

// Server builds the operator API. Triggers for unconfigured services answer 503.
func (a *App) Server() (*server.Server, error) {
	jwtCfg, err := a.Config.JWT()
	if err != nil {
		return nil, err
	}
	passwords, err := a.Config.Password()
	if err != nil {
		return nil, err
	}
	if a.Config.Auth.OperatorPasswordHash == "" {
		a.Logger.Warn().Msg("OPERATOR_PASSWORD_HASH is not set; token requests will be rejected")
	}

	jwtSvc := server.NewJWTService(jwtCfg)
	auth := server.NewAuthHandler(server.Operator{
		Username:     a.Config.Auth.OperatorUser,
		PasswordHash: a.Config.Auth.OperatorPasswordHash,
	}, passwords, jwtSvc, a.Logger)

	deps := server.Deps{
		Ledger:    a.Ledger,
		Schedules: a.Schedules,
		Ticker:    unavailable{reason: ErrPublishDisabled},
		Batches:   unavailable{reason: ErrGenerationDisabled},
		Auth:      auth,
		JWT:       jwtSvc,
		Metrics:   a.Metrics,
	}
	if p, err := a.Publisher(); err == nil {
		deps.Ticker = p
	}
	if b, err := a.Batches(); err == nil {
		deps.Batches = b
	}

	sc := a.Config.Server
	return server.New(deps, server.Options{
		Addr:          sc.Addr,
		AllowedOrigin: sc.AllowedOrigin,
		RateLimit:     ratelimit.NewConfig(sc.RatePerSecond, sc.Burst),
	}, a.Logger), nil
}
