package main

import (
	"github.com/spf13/cobra"

	"github.com/hihihowru/forum-autoposter-sub005/internal/observability"
	"github.com/hihihowru/forum-autoposter-sub005/internal/publish"
)

var (
	tickCap      int
	tickPersonas []string
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Publish due ready posts once",
	Long:  `Run one publish tick: select ready_to_publish rows whose scheduled time has passed and publish them per persona.`,
	RunE:  runTick,
}

func init() {
	tickCmd.Flags().IntVar(&tickCap, "cap", 0, "Maximum rows to select (default from config)")
	tickCmd.Flags().StringSliceVar(&tickPersonas, "persona", nil, "Only publish for these persona serials")
	rootCmd.AddCommand(tickCmd)
}

func runTick(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	p, err := a.Publisher()
	if err != nil {
		return err
	}
	result, err := p.Tick(ctx, publish.TickOptions{Cap: tickCap, PersonaFilter: tickPersonas})
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), result, func(p *observability.Printer) { p.PrintTickResult(result) })
}
