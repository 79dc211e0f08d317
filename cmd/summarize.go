package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/models"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize recent notes now",
	Long: `Summarize the notes captured over the last few days, outside the schedule.

The summary is written to daily_summaries/ (or weekly_summaries/ with --weekly)
under the data directory. Nothing is written when no notes fall in the window.

Examples:
  snap-notes summarize              # last day
  snap-notes summarize --days 3
  snap-notes summarize --weekly     # last 7 days as a weekly summary`,
	Args: cobra.NoArgs,
	RunE: runSummarize,
}

var (
	summarizeDays   int
	summarizeWeekly bool
)

func init() {
	rootCmd.AddCommand(summarizeCmd)
	summarizeCmd.Flags().IntVarP(&summarizeDays, "days", "d", 0, "Number of days to look back (default from configuration)")
	summarizeCmd.Flags().BoolVarP(&summarizeWeekly, "weekly", "w", false, "Write a weekly summary instead of a daily one")
}

func runSummarize(_ *cobra.Command, _ []string) error {
	kind := models.PeriodDaily
	days := appConfig.Summary.DailyLookbackDays
	if summarizeWeekly {
		kind = models.PeriodWeekly
		days = appConfig.Summary.WeeklyLookbackDays
	}
	if summarizeDays > 0 {
		days = summarizeDays
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Summarizing the last %d day(s) using %s...\n", days, appConfig.Summary.Model)
	path, err := svc.Summarize(ctx, kind, days)
	if err != nil {
		return fmt.Errorf("failed to summarize: %w", err)
	}
	if path == "" {
		fmt.Println("No notes in that window; nothing written.")
		return nil
	}

	fmt.Printf("Summary written to %s\n", path)
	return nil
}
