package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Write daily and weekly summaries on schedule",
	Long: `Run the summary scheduler in the foreground until interrupted.

Daily summaries fire at summary.daily_time and weekly ones on
summary.weekly_day at summary.weekly_time, local time. Runs missed while the
scheduler was not running are not made up.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if !appConfig.Summary.Enabled {
		return fmt.Errorf("summaries are disabled; run 'snap-notes config set summary-enabled true'")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	next := svc.Scheduler.NextRuns()
	for _, kind := range []models.PeriodKind{models.PeriodDaily, models.PeriodWeekly} {
		if t, ok := next[kind]; ok {
			fmt.Printf("Next %s summary: %s\n", kind, t.Format("Mon 2006-01-02 15:04"))
		}
	}
	fmt.Println("Press Ctrl+C to stop")

	if err := svc.Scheduler.Run(ctx); err != nil {
		return err
	}
	logger.Info("Scheduler stopped")
	return nil
}
