// Package compose renders extraction and peer results into a note document.
package compose

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/streed/snap-notes/internal/constants"
	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/models"
)

// Section headings. The order they appear in a note is fixed.
const (
	HeadingMetadata    = "## Metadata"
	HeadingOCR         = "## Extracted Text"
	HeadingVLM         = "## Visual Description"
	HeadingPeerFailure = "## Post-processing Failures"
	HeadingUserNotes   = models.UserNotesHeading
)

// Markers written in place of the OCR section body.
const (
	MarkerNoText         = "_No text detected._"
	MarkerOCRUnavailable = "_No text detected: OCR unavailable"
	MarkerOCRNotRun      = "_OCR was not run for this capture._"
	MarkerLowConfidence  = "_No text detected above the confidence threshold"
)

// Composer holds the settings that shape every note.
type Composer struct {
	defaultTags   []string
	minConfidence float64
}

func New(defaultTags []string, minConfidence float64) *Composer {
	return &Composer{defaultTags: defaultTags, minConfidence: minConfidence}
}

// Input is everything known about a capture once extraction and
// post-processing have resolved.
type Input struct {
	ID         string
	Title      string
	Tags       []string
	Capture    models.Capture
	Extraction map[models.AdapterKind]models.ExtractionResult
	Peers      map[string]models.PeerResult
}

// Tags merges the configured default tags with caller tags.
func (c *Composer) Tags(extra []string) []string {
	return models.NormalizeTags(append(append([]string(nil), c.defaultTags...), extra...))
}

// DefaultTitle is used when the caller does not supply one.
func DefaultTitle(c models.Capture) string {
	return "Screenshot " + c.Timestamp().Format("2006-01-02 15:04:05")
}

// Compose builds the unsaved note. Output depends only on in.
func (c *Composer) Compose(in Input) *models.Note {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = DefaultTitle(in.Capture)
	}

	note := &models.Note{
		ID:      in.ID,
		Title:   title,
		Created: in.Capture.Timestamp(),
		Tags:    c.Tags(in.Tags),
		Image:   in.ID + constants.ImageExt,
		Source:  in.Capture.Source(),
		Region:  in.Capture.Region(),
	}

	ocr, hasOCR := in.Extraction[models.KindOCR]
	if hasOCR && ocr.OK() {
		note.OCRText = ocr.Text
	}
	vlm, hasVLM := in.Extraction[models.KindVLM]
	if hasVLM && vlm.OK() {
		note.VLMDescription = vlm.Text
	}

	for name, res := range in.Peers {
		if res.Status == models.PeerDisabled {
			continue
		}
		if note.Peers == nil {
			note.Peers = make(map[string]models.PeerResult)
		}
		res.Peer = name
		note.Peers[name] = res
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	c.writeMetadata(&b, note)
	c.writeOCR(&b, ocr, hasOCR)
	if hasVLM && vlm.OK() {
		fmt.Fprintf(&b, "%s\n\n%s\n\n", HeadingVLM, strings.TrimSpace(vlm.Text))
	}
	writePeers(&b, in.Peers)
	fmt.Fprintf(&b, "%s\n\n", HeadingUserNotes)

	note.Body = b.String()
	return note
}

func (c *Composer) writeMetadata(b *strings.Builder, note *models.Note) {
	b.WriteString(HeadingMetadata + "\n\n")
	fmt.Fprintf(b, "- **Captured:** %s UTC\n", note.Created.Format("2006-01-02 15:04:05"))
	if len(note.Tags) > 0 {
		fmt.Fprintf(b, "- **Tags:** %s\n", strings.Join(note.Tags, ", "))
	} else {
		b.WriteString("- **Tags:** _none_\n")
	}
	fmt.Fprintf(b, "- **Image:** ![%s](%s)\n", note.ID, note.Image)
	if note.Source != "" {
		fmt.Fprintf(b, "- **Source:** %s\n", note.Source)
	}
	if note.Region != nil {
		fmt.Fprintf(b, "- **Region:** %dx%d at (%d, %d)\n", note.Region.Width, note.Region.Height, note.Region.X, note.Region.Y)
	}
	b.WriteString("\n")
}

// writeOCR always emits the section so a reader can tell "not run" from
// "ran and found nothing".
func (c *Composer) writeOCR(b *strings.Builder, ocr models.ExtractionResult, present bool) {
	b.WriteString(HeadingOCR + "\n\n")
	switch {
	case !present || ocr.Status == models.ExtractionSkipped:
		b.WriteString(MarkerOCRNotRun + "\n\n")
	case ocr.Status == models.ExtractionFailed && errors.Is(ocr.Cause, interrors.ErrLowConfidence):
		b.WriteString(MarkerNoText + "\n\n")
	case ocr.Status == models.ExtractionFailed:
		if ocr.Error != "" {
			fmt.Fprintf(b, "%s (%s)._\n\n", MarkerOCRUnavailable, oneLine(ocr.Error))
		} else {
			fmt.Fprintf(b, "%s._\n\n", MarkerOCRUnavailable)
		}
	case strings.TrimSpace(ocr.Text) == "":
		b.WriteString(MarkerNoText + "\n\n")
	case ocr.Confidence != nil && *ocr.Confidence < c.minConfidence:
		fmt.Fprintf(b, "%s (confidence %.0f%%)._\n\n", MarkerLowConfidence, *ocr.Confidence*100)
	default:
		if ocr.Confidence != nil {
			fmt.Fprintf(b, "Confidence: %.0f%%\n\n", *ocr.Confidence*100)
		}
		writeFenced(b, "text", strings.TrimSpace(ocr.Text))
	}
}

func writePeers(b *strings.Builder, peers map[string]models.PeerResult) {
	names := make([]string, 0, len(peers))
	for name := range peers {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		res := peers[name]
		switch res.Status {
		case models.PeerOK:
			fmt.Fprintf(b, "## %s\n\n", name)
			writePayload(b, res.Payload)
		case models.PeerFailed, models.PeerTimeout:
			failed = append(failed, name)
		}
	}

	if len(failed) == 0 {
		return
	}
	b.WriteString(HeadingPeerFailure + "\n\n")
	for _, name := range failed {
		res := peers[name]
		if res.Error != "" {
			fmt.Fprintf(b, "- **%s**: %s (%s)\n", name, res.Status, oneLine(res.Error))
		} else {
			fmt.Fprintf(b, "- **%s**: %s\n", name, res.Status)
		}
	}
	b.WriteString("\n")
}

// writePayload prints a lone "output" string as prose, anything else as JSON.
func writePayload(b *strings.Builder, payload map[string]any) {
	if len(payload) == 1 {
		if s, ok := payload["output"].(string); ok {
			b.WriteString(strings.TrimSpace(s) + "\n\n")
			return
		}
	}
	if len(payload) == 0 {
		b.WriteString("_No output._\n\n")
		return
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(b, "%v\n\n", payload)
		return
	}
	writeFenced(b, "json", string(data))
}

// writeFenced picks a fence longer than any backtick run inside text.
func writeFenced(b *strings.Builder, lang, text string) {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	fence := strings.Repeat("`", max(3, longest+1))
	fmt.Fprintf(b, "%s%s\n%s\n%s\n\n", fence, lang, text, fence)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
