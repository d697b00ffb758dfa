package main

import (
	"github.com/spf13/cobra"

	"github.com/hihihowru/forum-autoposter-sub005/internal/observability"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print ledger row counts per status",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	counts, err := a.Ledger.StatusCounts(ctx)
	if err != nil {
		return err
	}
	out := make(map[string]int, len(types.AllStatuses))
	for _, st := range types.AllStatuses {
		out[string(st)] = counts[st]
	}
	return render(cmd.OutOrStdout(), out, func(p *observability.Printer) { p.PrintStatusCounts(counts) })
}
