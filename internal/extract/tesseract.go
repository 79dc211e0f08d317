package extract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
)

// TesseractConfig holds the OCR engine settings.
type TesseractConfig struct {
	// TesseractPath is the executable name or path
	TesseractPath string
	// Languages are passed to -l (e.g. "eng+deu")
	Languages string
}

// Tesseract runs the tesseract CLI and reads its TSV output so each word's
// confidence is available.
type Tesseract struct {
	config TesseractConfig
}

func NewTesseract(cfg TesseractConfig) *Tesseract {
	if cfg.TesseractPath == "" {
		cfg.TesseractPath = "tesseract"
	}
	return &Tesseract{config: cfg}
}

func (t *Tesseract) Kind() models.AdapterKind { return models.KindOCR }

// Available reports whether the engine can be found.
func (t *Tesseract) Available() error {
	if _, err := exec.LookPath(t.config.TesseractPath); err != nil {
		return pkgerrors.Wrapf(interrors.ErrAdapterUnavailable, "tesseract not found at %q", t.config.TesseractPath)
	}
	return nil
}

func (t *Tesseract) Extract(ctx context.Context, capture models.Capture) (Output, error) {
	if err := t.Available(); err != nil {
		return Output{}, err
	}

	tmpFile, err := os.CreateTemp("", "snap-ocr-*.png")
	if err != nil {
		return Output{}, pkgerrors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(capture.Image()); err != nil {
		tmpFile.Close()
		return Output{}, pkgerrors.Wrap(err, "failed to write temp file")
	}
	tmpFile.Close()

	args := []string{tmpPath, "stdout"}
	if t.config.Languages != "" {
		args = append(args, "-l", t.config.Languages)
	}
	args = append(args, "tsv")

	cmd := exec.CommandContext(ctx, t.config.TesseractPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Output{}, pkgerrors.Wrap(interrors.ErrAdapterTimeout, "tesseract")
		}
		logger.Debug("tesseract stderr: %s", strings.TrimSpace(stderr.String()))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Output{}, pkgerrors.Wrapf(interrors.ErrAdapterUnavailable, "tesseract exited with %d: %s", exitErr.ExitCode(), firstLine(stderr.String()))
		}
		return Output{}, pkgerrors.Wrap(interrors.ErrAdapterUnavailable, err.Error())
	}

	text, confidence := parseTSV(stdout.Bytes())
	if text == "" || confidence <= 0 {
		return Output{}, pkgerrors.Wrap(interrors.ErrLowConfidence, "tesseract found no text")
	}
	return Output{Text: text, Confidence: &confidence}, nil
}

// parseTSV rebuilds the recognized text line by line and returns the mean
// word confidence scaled to 0..1. Rows with conf -1 are layout rows.
func parseTSV(data []byte) (string, float64) {
	type lineKey struct{ page, block, par, line int }

	var (
		lines   []string
		current lineKey
		words   []string
		confSum float64
		count   int
		started bool
	)
	flush := func() {
		if len(words) > 0 {
			lines = append(lines, strings.Join(words, " "))
		}
		words = words[:0]
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		cols := strings.Split(scanner.Text(), "\t")
		if len(cols) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		key := lineKey{atoi(cols[1]), atoi(cols[2]), atoi(cols[3]), atoi(cols[4])}
		if started && key != current {
			flush()
		}
		current, started = key, true
		words = append(words, word)
		confSum += conf
		count++
	}
	flush()

	if count == 0 {
		return "", 0
	}
	return strings.Join(lines, "\n"), confSum / float64(count) / 100
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
