package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/pipeline"
	"github.com/streed/snap-notes/internal/search"
)

var captureCmd = &cobra.Command{
	Use:   "capture FILE.png",
	Short: "Turn an existing screenshot into a note",
	Long: `Run a PNG file through the capture pipeline: OCR, vision model and
post-processing peers, then save the note next to a copy of the image and
index it.

Examples:
  snap-notes capture shot.png
  snap-notes capture shot.png --tag finance --title "Quarterly Review"
  snap-notes capture shot.png --no-vlm --peer excel`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

var (
	captureTitle     string
	captureTags      []string
	captureSource    string
	captureRegion    string
	captureTimestamp string
	captureNoOCR     bool
	captureNoVLM     bool
	captureNoPeers   bool
	capturePeers     []string
)

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVarP(&captureTitle, "title", "t", "", "Note title (defaults to the capture time)")
	captureCmd.Flags().StringSliceVarP(&captureTags, "tag", "T", nil, "Tags for the note (repeatable or comma-separated)")
	captureCmd.Flags().StringVar(&captureSource, "source", "cli", "Where the capture came from")
	captureCmd.Flags().StringVar(&captureRegion, "region", "", "Screen region as x,y,w,h")
	captureCmd.Flags().StringVar(&captureTimestamp, "timestamp", "", "Capture time (defaults to the file's modification time)")
	captureCmd.Flags().BoolVar(&captureNoOCR, "no-ocr", false, "Skip OCR")
	captureCmd.Flags().BoolVar(&captureNoVLM, "no-vlm", false, "Skip the vision model")
	captureCmd.Flags().BoolVar(&captureNoPeers, "no-peers", false, "Skip post-processing peers")
	captureCmd.Flags().StringSliceVar(&capturePeers, "peer", nil, "Only dispatch to these peers")
}

func runCapture(_ *cobra.Command, args []string) error {
	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to read capture: %w", err)
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read capture: %w", err)
	}

	ts := info.ModTime()
	if captureTimestamp != "" {
		if ts, err = search.ParseDate(captureTimestamp, false, time.Local); err != nil {
			return err
		}
	}

	var region *models.Region
	if captureRegion != "" {
		if region, err = models.ParseRegion(captureRegion); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := svc.Pipeline.Process(ctx, models.NewCapture(image, ts, region, captureSource), pipeline.Options{
		Title:     captureTitle,
		Tags:      captureTags,
		SkipOCR:   captureNoOCR,
		SkipVLM:   captureNoVLM,
		SkipPeers: captureNoPeers,
		Peers:     capturePeers,
	})
	if err != nil {
		return fmt.Errorf("capture %s: %w", res.State, err)
	}

	fmt.Printf("Note saved: %s\n", res.Path)
	fmt.Printf("ID: %s\n", res.Note.ID)
	fmt.Printf("Title: %s\n", res.Note.Title)
	if len(res.Note.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(res.Note.Tags, ", "))
	}
	for _, kind := range []models.AdapterKind{models.KindOCR, models.KindVLM} {
		if r, ok := res.Extraction[kind]; ok {
			printOutcome(string(kind), string(r.Status), r.Error)
		}
	}
	for name, r := range res.Peers {
		printOutcome("peer "+name, string(r.Status), r.Error)
	}
	if res.State == pipeline.StatePersisted {
		fmt.Printf("\nWarning: the note was saved but not indexed: %s\n", res.Error)
		fmt.Println("Run 'snap-notes reindex' to make it searchable.")
	}
	fmt.Printf("Done in %v\n", res.Duration.Round(time.Millisecond))
	return nil
}

func printOutcome(label, status, errMsg string) {
	if errMsg != "" {
		fmt.Printf("  %-16s %s (%s)\n", label+":", status, errMsg)
		return
	}
	fmt.Printf("  %-16s %s\n", label+":", status)
}
