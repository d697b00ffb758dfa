// Package observability provides formatted output utilities for the CLI text mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/hihihowru/forum-autoposter-sub005/internal/discovery"
	"github.com/hihihowru/forum-autoposter-sub005/internal/pipeline"
	"github.com/hihihowru/forum-autoposter-sub005/internal/publish"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for text mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, clip(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// clip shortens s to n runes
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// PrintBatchReport outputs the counts of a generation batch and its first items.
func (p *Printer) PrintBatchReport(r *pipeline.Report) {
	if r == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Batch:     %s\n", r.BatchID))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", r.FinishedAt.Sub(r.StartedAt).Round(1e6)))
	sb.WriteString(fmt.Sprintf("Topics:    %d\n", r.Topics))
	sb.WriteString(fmt.Sprintf("Assigned:  %d (%d conflicts)\n", r.Assigned, r.Conflicts))
	sb.WriteString(fmt.Sprintf("Ready:     %d (%d flagged)\n", r.Ready, r.Flagged))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Deferred:  %d", r.Deferred))

	if len(r.Items) > 0 {
		sb.WriteString("\n\n")
		count := min(len(r.Items), maxItemsToShow)
		for i := 0; i < count; i++ {
			item := r.Items[i]
			line := fmt.Sprintf("  • %s  %s", item.WorkID, item.Status)
			switch {
			case item.Error != "":
				line += "  " + item.Error
			case item.Title != "":
				line += "  " + item.Title
			}
			sb.WriteString(line + "\n")
		}
		if len(r.Items) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more", len(r.Items)-maxItemsToShow))
		}
	}

	p.printBox("GENERATION BATCH", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintTickResult outputs a publish tick summary with failed and skipped rows.
func (p *Printer) PrintTickResult(r *publish.BatchResult) {
	if r == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Selected:  %d\n", r.Selected))
	sb.WriteString(fmt.Sprintf("Published: %d\n", r.Published))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Skipped:   %d", r.Skipped))
	if len(r.Unrecorded) > 0 {
		sb.WriteString(fmt.Sprintf("\nUnrecorded: %d", len(r.Unrecorded)))
	}

	var notable []publish.Outcome
	for _, o := range r.Outcomes {
		if o.Error != "" || o.SkipReason != "" {
			notable = append(notable, o)
		}
	}
	if len(notable) > 0 {
		sb.WriteString("\n\n")
		count := min(len(notable), maxItemsToShow)
		for i := 0; i < count; i++ {
			o := notable[i]
			reason := o.Error
			if reason == "" {
				reason = "skipped: " + o.SkipReason
			}
			sb.WriteString(fmt.Sprintf("  • %s  %s\n", o.WorkID, reason))
		}
		if len(notable) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more", len(notable)-maxItemsToShow))
		}
	}

	p.printBox("PUBLISH TICK", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintDiscoveryReport outputs how many topics a discovery run found and stored.
func (p *Printer) PrintDiscoveryReport(r *discovery.Report) {
	if r == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Candidates: %d\n", r.Candidates))
	sb.WriteString(fmt.Sprintf("New topics: %d", r.Added))
	if len(r.Errors) > 0 {
		sb.WriteString("\n\nSource errors:\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("  • %s: %s\n", e.Source, e.Error))
		}
	}

	p.printBox("TOPIC DISCOVERY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStatusCounts outputs ledger rows per status in lifecycle order.
func (p *Printer) PrintStatusCounts(counts map[types.PostStatus]int) {
	var sb strings.Builder
	total := 0
	for _, st := range types.AllStatuses {
		sb.WriteString(fmt.Sprintf("%-20s %d\n", st, counts[st]))
		total += counts[st]
	}
	sb.WriteString(fmt.Sprintf("%-20s %d", "total", total))

	p.printBox("POST LEDGER", sb.String())
}
