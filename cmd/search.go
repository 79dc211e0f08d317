package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search notes",
	Long: `Search notes by text, tags and capture date.

Results are ranked by how often the query terms appear in the OCR text, the
visual description and the title. With no query, the newest notes matching
the filters are listed.

Dates accept 2006-01-02, 2006-01-02T15:04 or RFC3339. A bare --to date
includes the whole day.`,
	RunE: runSearch,
}

var (
	searchLimit int
	searchTags  []string
	searchFrom  string
	searchTo    string
	searchShort bool
)

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "Maximum number of results (0 for the configured default)")
	searchCmd.Flags().StringSliceVarP(&searchTags, "tags", "T", nil, "Only notes carrying all of these tags")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "Only notes captured at or after this date")
	searchCmd.Flags().StringVar(&searchTo, "to", "", "Only notes captured at or before this date")
	searchCmd.Flags().BoolVarP(&searchShort, "short", "s", false, "Show only ID and title")
}

func runSearch(cmd *cobra.Command, args []string) error {
	q := search.Query{
		Text:  strings.Join(args, " "),
		Tags:  searchTags,
		Limit: appConfig.SearchLimit(searchLimit),
	}
	var err error
	if q.From, err = search.ParseDate(searchFrom, false, time.Local); err != nil {
		return err
	}
	if q.To, err = search.ParseDate(searchTo, true, time.Local); err != nil {
		return err
	}

	entries, err := svc.Index.Search(context.Background(), q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No matching notes found.")
		return nil
	}

	if len(entries) == 1 {
		fmt.Println("Found 1 matching note:")
	} else {
		fmt.Printf("Found %d matching notes:\n", len(entries))
	}
	fmt.Println()

	printEntries(entries, searchShort)
	return nil
}

func printEntries(entries []models.IndexEntry, short bool) {
	for _, e := range entries {
		if short {
			fmt.Printf("[%s] %s\n", e.ID, e.Title)
			continue
		}
		fmt.Printf("ID: %s\n", e.ID)
		fmt.Printf("Title: %s\n", e.Title)
		fmt.Printf("Captured: %s\n", formatTime(e.Created))
		if len(e.Tags) > 0 {
			fmt.Printf("Tags: %s\n", strings.Join(e.Tags, ", "))
		}
		if e.Score > 0 {
			fmt.Printf("Score: %.4f\n", e.Score)
		}
		if e.Snippet != "" {
			fmt.Printf("Preview: %s\n", e.Snippet)
		}
		fmt.Printf("Path: %s\n", e.Path)
		fmt.Println(strings.Repeat("-", 60))
	}
}
