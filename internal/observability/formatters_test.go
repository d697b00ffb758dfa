package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hihihowru/forum-autoposter-sub005/internal/discovery"
	"github.com/hihihowru/forum-autoposter-sub005/internal/pipeline"
	"github.com/hihihowru/forum-autoposter-sub005/internal/publish"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

func TestPrintBatchReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	report := &pipeline.Report{
		BatchID:    "b-1",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Topics:     2,
		Assigned:   4,
		Ready:      3,
		Failed:     1,
	}
	for i := 0; i < 7; i++ {
		report.Items = append(report.Items, pipeline.ItemOutcome{WorkID: "t1::10" + string(rune('0'+i)), Status: types.StatusReadyToPublish, Title: "台積電法說會重點整理"})
	}
	report.Items[1] = pipeline.ItemOutcome{WorkID: "t1::101", Status: types.StatusGenerationFailed, Error: "timeout"}

	p.PrintBatchReport(report)
	out := buf.String()

	assert.Contains(t, out, "GENERATION BATCH")
	assert.Contains(t, out, "b-1")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "Assigned:  4 (0 conflicts)")
	assert.Contains(t, out, "t1::101  generation_failed  timeout")
	assert.Contains(t, out, "台積電法說會重點整理")
	assert.Contains(t, out, "... and 2 more")
}

func TestPrintTickResult(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintTickResult(&publish.BatchResult{
		Selected:  3,
		Published: 1,
		Failed:    1,
		Skipped:   1,
		Outcomes: []publish.Outcome{
			{WorkID: "a::1", Status: types.StatusPublished},
			{WorkID: "b::1", Status: types.StatusPublishFailed, Error: "HTTP 403"},
			{WorkID: "c::2", Status: types.StatusReadyToPublish, SkipReason: "breaker open"},
		},
		Unrecorded: []string{"d::3"},
	})
	out := buf.String()

	assert.Contains(t, out, "PUBLISH TICK")
	assert.Contains(t, out, "b::1  HTTP 403")
	assert.Contains(t, out, "c::2  skipped: breaker open")
	assert.Contains(t, out, "Unrecorded: 1")
	assert.NotContains(t, out, "a::1")
}

func TestPrintDiscoveryReportAndCounts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.PrintDiscoveryReport(&discovery.Report{Candidates: 9, Added: 4, Errors: []discovery.SourceError{{Source: "ptt", Error: "HTTP status 503"}}})
	p.PrintStatusCounts(map[types.PostStatus]int{types.StatusPublished: 2, types.StatusReadyToPublish: 1})
	out := buf.String()

	assert.Contains(t, out, "New topics: 4")
	assert.Contains(t, out, "ptt: HTTP status 503")
	assert.Contains(t, out, "published")
	assert.Regexp(t, `total\s+3`, out)
}

func TestNilInputsPrintNothing(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.PrintBatchReport(nil)
	p.PrintTickResult(nil)
	p.PrintDiscoveryReport(nil)
	assert.Empty(t, buf.String())
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	long := strings.Repeat("漲", 20)
	got := clip(long, 10)
	assert.Equal(t, 10, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
}
