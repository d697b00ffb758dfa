package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hihihowru/forum-autoposter-sub005/internal/app"
)

var serveNoScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operator API and the periodic driver",
	Long: `Start an HTTP server that exposes the operator API, and the schedule runner that fires publish and
generate jobs at their cadences. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "Serve the API without running scheduled jobs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := a.Server()
	if err != nil {
		return err
	}

	if !serveNoScheduler {
		runner, err := a.ScheduleRunner()
		switch {
		case errors.Is(err, app.ErrPublishDisabled), errors.Is(err, app.ErrGenerationDisabled):
			a.Logger.Warn().Err(err).Msg("schedule runner not started")
		case err != nil:
			return err
		default:
			if err := runner.Start(ctx); err != nil {
				return err
			}
			defer runner.Stop()
		}
	}

	return srv.Start(ctx)
}
