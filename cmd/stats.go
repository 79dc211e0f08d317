package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show search index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := svc.Index.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Println("=== Index Statistics ===")
	fmt.Printf("Index:         %s\n", stats.Path)
	fmt.Printf("Notes:         %d\n", stats.EntryCount)
	if stats.Oldest != nil {
		fmt.Printf("Oldest:        %s\n", stats.Oldest.Local().Format("2006-01-02 15:04:05"))
	}
	if stats.Newest != nil {
		fmt.Printf("Newest:        %s\n", stats.Newest.Local().Format("2006-01-02 15:04:05"))
	}
	if stats.LastRebuild != "" {
		fmt.Printf("Last rebuild:  %s\n", stats.LastRebuild)
	}

	if len(stats.TagHistogram) > 0 {
		tags := make([]string, 0, len(stats.TagHistogram))
		for tag := range stats.TagHistogram {
			tags = append(tags, tag)
		}
		sort.Slice(tags, func(i, j int) bool {
			if stats.TagHistogram[tags[i]] != stats.TagHistogram[tags[j]] {
				return stats.TagHistogram[tags[i]] > stats.TagHistogram[tags[j]]
			}
			return tags[i] < tags[j]
		})
		fmt.Println("\nTags:")
		for _, tag := range tags {
			fmt.Printf("  %-30s %d\n", tag, stats.TagHistogram[tag])
		}
	}
	return nil
}
