package models

import "time"

// PeriodKind distinguishes daily and weekly rollups.
type PeriodKind string

const (
	PeriodDaily  PeriodKind = "daily"
	PeriodWeekly PeriodKind = "weekly"
)

// Period is the window a summary covers. At is when the summary was
// requested and names the output file.
type Period struct {
	Kind PeriodKind `json:"kind"`
	From time.Time  `json:"from"`
	To   time.Time  `json:"to"`
	At   time.Time  `json:"at"`
}

// LookbackPeriod covers the days before at, inclusive of at itself.
func LookbackPeriod(kind PeriodKind, at time.Time, days int) Period {
	if days <= 0 {
		days = 1
	}
	return Period{Kind: kind, From: at.AddDate(0, 0, -days), To: at, At: at}
}
