package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List all tags",
	Long:  `List every tag in the index with the number of notes carrying it.`,
	Args:  cobra.NoArgs,
	RunE:  runTags,
}

func init() {
	rootCmd.AddCommand(tagsCmd)
}

func runTags(cmd *cobra.Command, args []string) error {
	tags, err := svc.Index.Tags(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get tags: %w", err)
	}

	if len(tags) == 0 {
		fmt.Println("No tags found.")
		return nil
	}

	fmt.Printf("Found %d tags:\n\n", len(tags))
	for _, t := range tags {
		fmt.Printf("  %-30s %d\n", t.Tag, t.Count)
	}
	return nil
}
