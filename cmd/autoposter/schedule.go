package main

import (
	"github.com/spf13/cobra"

	"github.com/hihihowru/forum-autoposter-sub005/internal/schedule"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

var (
	scheduleName     string
	scheduleKind     string
	scheduleCadence  string
	scheduleCap      int
	schedulePersonas []string
	scheduleActive   bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring publish and generate jobs",
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a recurring job",
	Args:  cobra.NoArgs,
	RunE:  runScheduleCreate,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Args:  cobra.NoArgs,
	RunE:  runScheduleList,
}

var scheduleCancelCmd = &cobra.Command{
	Use:   "cancel JOB_ID",
	Short: "Deactivate a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleCancel,
}

func init() {
	scheduleCreateCmd.Flags().StringVar(&scheduleName, "name", "", "Job name")
	scheduleCreateCmd.Flags().StringVar(&scheduleKind, "kind", string(types.JobKindPublish), "Job kind: publish or generate")
	scheduleCreateCmd.Flags().StringVar(&scheduleCadence, "cadence", "15m", "Run interval, at least 1m")
	scheduleCreateCmd.Flags().IntVar(&scheduleCap, "cap", 0, "Rows per tick or topics per batch (0 uses the config default)")
	scheduleCreateCmd.Flags().StringSliceVar(&schedulePersonas, "persona", nil, "Restrict the job to these persona serials")
	_ = scheduleCreateCmd.MarkFlagRequired("name")

	scheduleListCmd.Flags().BoolVar(&scheduleActive, "active", false, "Only list active jobs")

	scheduleCmd.AddCommand(scheduleCreateCmd, scheduleListCmd, scheduleCancelCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleCreate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	job, err := a.Schedules.Create(ctx, schedule.CreateRequest{
		Name:          scheduleName,
		Kind:          types.JobKind(scheduleKind),
		Cadence:       scheduleCadence,
		BatchCap:      scheduleCap,
		PersonaFilter: schedulePersonas,
	})
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), job, nil)
}

func runScheduleList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	jobs, err := a.Schedules.List(ctx, scheduleActive)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), jobs, nil)
}

func runScheduleCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	job, err := a.Schedules.Cancel(ctx, args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), job, nil)
}
