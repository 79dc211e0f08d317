package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/logger"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the note files",
	Long: `Discard the search index and rebuild it from every note under the data
directory. Searches keep being served from the old index until the new one
is complete. Files that cannot be parsed are skipped and logged.

Use --sweep to also remove temp files and orphaned images left behind by an
interrupted capture.`,
	RunE: runReindex,
}

var (
	reindexSweep    bool
	reindexSweepAge time.Duration
)

func init() {
	rootCmd.AddCommand(reindexCmd)
	reindexCmd.Flags().BoolVar(&reindexSweep, "sweep", false, "Remove leftovers from interrupted writes before rebuilding")
	reindexCmd.Flags().DurationVar(&reindexSweepAge, "sweep-age", time.Hour, "Only sweep files older than this")
}

func runReindex(cmd *cobra.Command, args []string) error {
	if reindexSweep {
		swept, err := svc.Store.Sweep(reindexSweepAge)
		if err != nil {
			return fmt.Errorf("failed to sweep data directory: %w", err)
		}
		fmt.Printf("Swept %d temp files and %d orphaned images\n", swept.TempFiles, swept.OrphanedImages)
	}

	fmt.Printf("Rebuilding index at %s...\n", svc.Index.Path())
	res, err := svc.Index.Rebuild(context.Background())
	if err != nil {
		logger.Error("Rebuild failed: %v", err)
		return fmt.Errorf("failed to rebuild index: %w", err)
	}

	fmt.Printf("\nReindexing complete: %d notes indexed", res.Indexed)
	if res.Skipped > 0 {
		fmt.Printf(", %d skipped (run with --debug for details)", res.Skipped)
	}
	fmt.Printf(" in %v\n", res.Duration.Round(time.Millisecond))
	return nil
}
