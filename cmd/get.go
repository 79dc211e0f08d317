package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Print a note by ID",
	Long:  `Print the full note file, frontmatter included, for the given note id.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var getImagePath bool

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&getImagePath, "image", false, "Print the path of the note's image instead")
}

func runGet(_ *cobra.Command, args []string) error {
	note, err := svc.Store.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get note: %w", err)
	}

	if getImagePath {
		fmt.Println(svc.Store.ImagePath(note))
		return nil
	}

	data, err := os.ReadFile(note.Path)
	if err != nil {
		return fmt.Errorf("failed to read note: %w", err)
	}
	fmt.Print(string(data))
	return nil
}
