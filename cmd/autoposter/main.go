// Package main provides the autoposter command line: the operator API server, the
// periodic driver, and one-shot publish, generation and discovery runs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hihihowru/forum-autoposter-sub005/internal/app"
	"github.com/hihihowru/forum-autoposter-sub005/internal/config"
	"github.com/hihihowru/forum-autoposter-sub005/internal/logging"
	"github.com/hihihowru/forum-autoposter-sub005/internal/observability"
)

var (
	configPath   string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "autoposter",
	Short: "KOL forum topic-to-post pipeline",
	Long: `autoposter discovers trending topics, assigns them to KOL personas, generates posts with the Generation API
and publishes them to the forum on a schedule.

Configuration is read from --config, $AUTOPOSTER_CONFIG or the XDG config directory; environment variables override it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json or text")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadApp reads the configuration and wires the components
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

// render prints v as JSON, or through text when --output=text
func render(w io.Writer, v any, text func(p *observability.Printer)) error {
	switch outputFormat {
	case "text":
		if text != nil {
			text(observability.NewPrinter(w))
			return nil
		}
		return printJSON(w, v)
	case "json", "":
		return printJSON(w, v)
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}

// printJSON writes v indented to w
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
