package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/streed/snap-notes/internal/constants"
	interrors "github.com/streed/snap-notes/internal/errors"
)

// Keys lists the settings accepted by Set, in display order.
var Keys = []string{
	"data-dir", "index-path", "debug", "search-limit", "pipeline-timeout", "peer-timeout",
	"ocr-enabled", "tesseract-path", "ocr-languages", "ocr-min-confidence",
	"vlm-enabled", "vlm-provider", "vlm-endpoint", "vlm-model",
	"summary-enabled", "summary-provider", "summary-endpoint", "summary-model",
	"daily-time", "weekly-day", "weekly-time",
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case constants.BoolTrue, constants.BoolOne, constants.BoolYes:
		return true, nil
	case constants.BoolFalse, constants.BoolZero, constants.BoolNo:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", interrors.ErrInvalidBoolean, value)
}

func parseClock(value string) error {
	if _, err := time.Parse("15:04", value); err != nil {
		return fmt.Errorf("%w: time of day must be HH:MM, got %q", interrors.ErrInvalidConfig, value)
	}
	return nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Set assigns a single setting by its CLI key and revalidates the config.
func (c *Config) Set(key, value string) error {
	switch key {
	case "data-dir":
		c.DataDirectory = ExpandPath(value)
	case "index-path":
		c.IndexPath = ExpandPath(value)
	case "debug":
		v, err := parseBool(value)
		if err != nil {
			return err
		}
		c.Debug = v
	case "search-limit":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: search-limit must be a non-negative integer", interrors.ErrInvalidConfig)
		}
		c.SearchDefaultLimit = n
	case "pipeline-timeout", "peer-timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %s must be a positive duration like 30s", interrors.ErrInvalidConfig, key)
		}
		if key == "pipeline-timeout" {
			c.PipelineTimeout = Duration(d)
		} else {
			c.PeerTimeout = Duration(d)
		}
	case "ocr-enabled":
		v, err := parseBool(value)
		if err != nil {
			return err
		}
		c.OCR.Enabled = v
	case "tesseract-path":
		c.OCR.TesseractPath = ExpandPath(value)
	case "ocr-languages":
		c.OCR.Languages = value
	case "ocr-min-confidence":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: ocr-min-confidence must be a number", interrors.ErrInvalidConfig)
		}
		c.OCR.MinConfidence = f
	case "vlm-enabled":
		v, err := parseBool(value)
		if err != nil {
			return err
		}
		c.VLM.Enabled = v
	case "vlm-provider":
		c.VLM.Provider = strings.ToLower(value)
	case "vlm-endpoint":
		c.VLM.Endpoint = value
	case "vlm-model":
		c.VLM.Model = value
	case "summary-enabled":
		v, err := parseBool(value)
		if err != nil {
			return err
		}
		c.Summary.Enabled = v
	case "summary-provider":
		c.Summary.Provider = strings.ToLower(value)
	case "summary-endpoint":
		c.Summary.Endpoint = value
	case "summary-model":
		c.Summary.Model = value
	case "daily-time":
		if err := parseClock(value); err != nil {
			return err
		}
		c.Summary.DailyTime = value
	case "weekly-day":
		if _, err := ParseWeekday(value); err != nil {
			return err
		}
		c.Summary.WeeklyDay = strings.ToLower(value)
	case "weekly-time":
		if err := parseClock(value); err != nil {
			return err
		}
		c.Summary.WeeklyTime = value
	default:
		return fmt.Errorf("%w: %s", interrors.ErrUnknownConfigKey, key)
	}
	return c.Validate()
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(value string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || v == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: unknown weekday %q", interrors.ErrInvalidConfig, value)
}
