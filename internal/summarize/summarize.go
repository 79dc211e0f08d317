// Package summarize writes the daily and weekly rollups of captured notes.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/streed/snap-notes/internal/constants"
	"github.com/streed/snap-notes/internal/llm"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
)

// Writer is the part of the artifact store a summary needs.
type Writer interface {
	DailySummaryPath(day time.Time) string
	WeeklySummaryPath(day time.Time) string
	WriteSummary(path string, content []byte) error
}

// Summarizer asks a model for a rollup of a period's notes and stores it
// beside the captures.
type Summarizer struct {
	gen    llm.Generator
	store  Writer
	now    func() time.Time
	maxLen int
}

// NewSummarizer creates a summarizer backed by gen.
func NewSummarizer(gen llm.Generator, store Writer) *Summarizer {
	return &Summarizer{
		gen:    gen,
		store:  store,
		now:    time.Now,
		maxLen: constants.SummaryNoteMaxChars,
	}
}

// Summarize generates and writes the summary for period. It returns the
// path of the written file.
func (s *Summarizer) Summarize(ctx context.Context, period models.Period, entries []models.IndexEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("no notes to summarize")
	}

	start := time.Now()
	summary, err := s.gen.Generate(ctx, s.prompt(period, entries))
	if err != nil {
		return "", fmt.Errorf("failed to generate %s summary: %w", period.Kind, err)
	}
	logger.Debug("%s summary from %s took %v", period.Kind, s.gen.Name(), time.Since(start))

	path := s.store.DailySummaryPath(period.At)
	if period.Kind == models.PeriodWeekly {
		path = s.store.WeeklySummaryPath(period.At)
	}
	if err := s.store.WriteSummary(path, []byte(s.document(period, strings.TrimSpace(summary), entries))); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}

func (s *Summarizer) prompt(period models.Period, entries []models.IndexEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Please provide a %s summary of the following screenshot notes captured between %s and %s.\n",
		period.Kind, period.From.Format("2006-01-02 15:04"), period.To.Format("2006-01-02 15:04"))
	b.WriteString("Identify key themes, recurring topics and anything that looks like a follow-up task.\n")
	b.WriteString("Group related captures together and keep it brief.\n\n")

	for i, e := range entries {
		fmt.Fprintf(&b, "Note %d (ID: %s)\n", i+1, e.ID)
		fmt.Fprintf(&b, "Title: %s\n", e.Title)
		fmt.Fprintf(&b, "Captured: %s\n", e.Created.Local().Format("2006-01-02 15:04"))
		if len(e.Tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(e.Tags, ", "))
		}
		fmt.Fprintf(&b, "Content: %s\n\n---\n\n", truncate(e.Text, s.maxLen))
	}
	b.WriteString("Summary:")
	return b.String()
}

func (s *Summarizer) document(period models.Period, summary string, entries []models.IndexEntry) string {
	var b strings.Builder
	switch period.Kind {
	case models.PeriodWeekly:
		year, week := period.At.ISOWeek()
		fmt.Fprintf(&b, "# Weekly Summary %04d-W%02d\n\n", year, week)
	default:
		fmt.Fprintf(&b, "# Daily Summary %s\n\n", period.At.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Generated: %s\n", s.now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Period: %s to %s\n", period.From.Format(time.RFC3339), period.To.Format(time.RFC3339))
	fmt.Fprintf(&b, "Model: %s\n\n", s.gen.Name())
	b.WriteString("## Summary\n\n")
	b.WriteString(summary)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "## Source Notes (%d)\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.ID, e.Title)
	}
	return b.String()
}

// truncate cuts text to max runes, marking the cut.
func truncate(text string, max int) string {
	r := []rune(text)
	if max <= 0 || len(r) <= max {
		return text
	}
	return string(r[:max]) + "..."
}
