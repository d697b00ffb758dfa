package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hihihowru/forum-autoposter-sub005/internal/observability"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Fetch configured topic sources once",
	RunE:  runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if len(a.Config.Discovery.Sources) == 0 {
		return fmt.Errorf("no discovery sources configured")
	}
	report, err := a.Discoverer.Run(ctx)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), report, func(p *observability.Printer) { p.PrintDiscoveryReport(report) })
}
