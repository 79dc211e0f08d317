package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/constants"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent notes",
	Long:  `List the most recently captured notes, newest first.`,
	RunE:  runList,
}

var (
	listLimit int
	listTags  []string
	listShort bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", constants.DefaultListLimit, "Maximum number of notes to display")
	listCmd.Flags().StringSliceVarP(&listTags, "tags", "T", nil, "Only notes carrying all of these tags")
	listCmd.Flags().BoolVarP(&listShort, "short", "s", false, "Show only ID and title")
}

func runList(cmd *cobra.Command, args []string) error {
	entries, err := svc.Index.Recent(context.Background(), appConfig.SearchLimit(listLimit), listTags)
	if err != nil {
		return fmt.Errorf("failed to list notes: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No notes found.")
		return nil
	}

	fmt.Printf("Found %d notes:\n\n", len(entries))
	printEntries(entries, listShort)
	return nil
}

func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		minutes := int(diff.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}
