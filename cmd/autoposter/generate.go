package main

import (
	"github.com/spf13/cobra"

	"github.com/hihihowru/forum-autoposter-sub005/internal/observability"
	"github.com/hihihowru/forum-autoposter-sub005/internal/pipeline"
)

var (
	generateTopicLimit int
	generatePersonas   []string
	generateDiscover   bool
	generateVerbose    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Assign unprocessed topics and generate posts once",
	Long: `Run one batch: assign unprocessed topics to personas, write pending rows to the ledger and generate
content for every pending row.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().IntVar(&generateTopicLimit, "topic-limit", 0, "Maximum unprocessed topics to take (default from config)")
	generateCmd.Flags().StringSliceVar(&generatePersonas, "persona", nil, "Only assign and generate for these persona serials")
	generateCmd.Flags().BoolVar(&generateDiscover, "discover", false, "Run topic discovery before the batch")
	generateCmd.Flags().BoolVarP(&generateVerbose, "verbose", "v", false, "Print progress to stderr")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	runner, err := a.Batches()
	if err != nil {
		return err
	}

	if generateDiscover {
		rep, err := a.Discoverer.Run(ctx)
		if err != nil {
			return err
		}
		cmd.PrintErrf("discovered %d topics (%d new, %d source errors)\n", rep.Candidates, rep.Added, len(rep.Errors))
	}

	opts := pipeline.BatchOptions{TopicLimit: generateTopicLimit, PersonaFilter: generatePersonas}
	if generateVerbose {
		opts.OnProgress = func(e pipeline.ProgressEvent) {
			cmd.PrintErrf("[%s] %s\n", e.Step, e.Message)
		}
	}
	report, err := runner.RunBatch(ctx, opts)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), report, func(p *observability.Printer) { p.PrintBatchReport(report) })
}
