package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/streed/snap-notes/internal/constants"
)

// DailySummaryPath is {root}/daily_summaries/daily_summary_YYYY-MM-DD.md.
func (s *Store) DailySummaryPath(day time.Time) string {
	name := constants.DailySummaryPrefix + day.Format("2006-01-02") + constants.NoteExt
	return filepath.Join(s.root, constants.DailySummaryDir, name)
}

// WeeklySummaryPath is {root}/weekly_summaries/weekly_summary_YYYY-Www.md
// using the ISO week of day.
func (s *Store) WeeklySummaryPath(day time.Time) string {
	year, week := day.ISOWeek()
	name := fmt.Sprintf("%s%04d-W%02d%s", constants.WeeklySummaryPrefix, year, week, constants.NoteExt)
	return filepath.Join(s.root, constants.WeeklySummaryDir, name)
}

// WriteSummary atomically writes a summary document, replacing any earlier
// version for the same period.
func (s *Store) WriteSummary(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.DataDirMode); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	return s.writeFileAtomic(path, content, constants.DataFileMode)
}
