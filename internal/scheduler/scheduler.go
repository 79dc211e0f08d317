// Package scheduler fires the daily and weekly summary jobs at configured
// wall-clock times. It only queries the index and hands results to a
// summarizer; it never calls a model itself.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/streed/snap-notes/internal/config"
	"github.com/streed/snap-notes/internal/constants"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/search"
)

// Searcher is the index query the scheduler needs.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]models.IndexEntry, error)
}

// Summarizer turns the entries of one period into a summary document.
type Summarizer interface {
	Summarize(ctx context.Context, period models.Period, entries []models.IndexEntry) (string, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Job is one recurring summary.
type Job struct {
	Kind     models.PeriodKind
	Lookback int
	next     func(after time.Time) time.Time
}

// Next returns the first firing strictly after t.
func (j Job) Next(t time.Time) time.Time { return j.next(t) }

// Daily fires every day at hh:mm in t's location.
func Daily(hour, minute, lookback int) Job {
	return Job{Kind: models.PeriodDaily, Lookback: lookback, next: func(t time.Time) time.Time {
		c := time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
		if !c.After(t) {
			c = time.Date(t.Year(), t.Month(), t.Day()+1, hour, minute, 0, 0, t.Location())
		}
		return c
	}}
}

// Weekly fires on day at hh:mm in t's location.
func Weekly(day time.Weekday, hour, minute, lookback int) Job {
	return Job{Kind: models.PeriodWeekly, Lookback: lookback, next: func(t time.Time) time.Time {
		ahead := (int(day) - int(t.Weekday()) + 7) % 7
		c := time.Date(t.Year(), t.Month(), t.Day()+ahead, hour, minute, 0, 0, t.Location())
		if !c.After(t) {
			c = time.Date(t.Year(), t.Month(), t.Day()+ahead+7, hour, minute, 0, 0, t.Location())
		}
		return c
	}}
}

// JobsFromConfig builds the daily and weekly jobs from the summary section.
func JobsFromConfig(cfg config.SummaryConfig) ([]Job, error) {
	dh, dm, err := parseClock(cfg.DailyTime)
	if err != nil {
		return nil, fmt.Errorf("daily_time: %w", err)
	}
	wh, wm, err := parseClock(cfg.WeeklyTime)
	if err != nil {
		return nil, fmt.Errorf("weekly_time: %w", err)
	}
	day, err := config.ParseWeekday(cfg.WeeklyDay)
	if err != nil {
		return nil, err
	}
	return []Job{
		Daily(dh, dm, cfg.DailyLookbackDays),
		Weekly(day, wh, wm, cfg.WeeklyLookbackDays),
	}, nil
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("time of day must be HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

type Scheduler struct {
	searcher   Searcher
	summarizer Summarizer
	jobs       []Job
	clock      Clock
	loc        *time.Location
}

// Option adjusts a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithLocation sets the zone the configured times are read in.
func WithLocation(loc *time.Location) Option { return func(s *Scheduler) { s.loc = loc } }

func New(searcher Searcher, summarizer Summarizer, jobs []Job, opts ...Option) *Scheduler {
	s := &Scheduler{
		searcher:   searcher,
		summarizer: summarizer,
		jobs:       jobs,
		clock:      realClock{},
		loc:        time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextRuns returns each job's next firing after now.
func (s *Scheduler) NextRuns() map[models.PeriodKind]time.Time {
	now := s.clock.Now().In(s.loc)
	out := make(map[models.PeriodKind]time.Time, len(s.jobs))
	for _, j := range s.jobs {
		out[j.Kind] = j.Next(now)
	}
	return out
}

// Run blocks until ctx is cancelled, firing jobs as they come due. Firings
// missed while the process was not running, or while a previous job was
// still working, are not replayed; the schedule resumes from the current
// time.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		<-ctx.Done()
		return nil
	}

	next := make([]time.Time, len(s.jobs))
	now := s.clock.Now().In(s.loc)
	for i, j := range s.jobs {
		next[i] = j.Next(now)
		logger.Info("Next %s summary at %s", j.Kind, next[i].Format(time.RFC1123))
	}

	for ctx.Err() == nil {
		due := 0
		for i := range next {
			if next[i].Before(next[due]) {
				due = i
			}
		}

		wait := next[due].Sub(s.clock.Now().In(s.loc))
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(wait):
		}

		firedAt := s.clock.Now().In(s.loc)
		for i, j := range s.jobs {
			if next[i].After(firedAt) {
				continue
			}
			if _, err := s.Fire(ctx, j.Kind, j.Lookback, firedAt); err != nil {
				logger.Error("%s summary failed: %v", j.Kind, err)
			}
		}

		now := s.clock.Now().In(s.loc)
		for i, j := range s.jobs {
			if !next[i].After(firedAt) {
				next[i] = j.Next(now)
				logger.Debug("Next %s summary at %s", j.Kind, next[i].Format(time.RFC1123))
			}
		}
	}
	return nil
}

// Fire runs one summary immediately: it queries the index for the lookback
// window ending at `at` and passes the entries to the summarizer. An empty
// window produces no summary. A window holding more than MaxSearchLimit notes
// is summarized from the newest ones and logged as truncated.
func (s *Scheduler) Fire(ctx context.Context, kind models.PeriodKind, lookback int, at time.Time) (string, error) {
	period := models.LookbackPeriod(kind, at, lookback)

	ctx, cancel := context.WithTimeout(ctx, constants.DefaultSummaryTimeout)
	defer cancel()

	entries, err := s.searcher.Search(ctx, search.Query{
		From:  period.From,
		To:    period.To,
		Limit: constants.MaxSearchLimit,
	})
	if err != nil {
		return "", fmt.Errorf("failed to query notes for %s summary: %w", kind, err)
	}
	if len(entries) == 0 {
		logger.Info("No notes between %s and %s, skipping %s summary",
			period.From.Format("2006-01-02 15:04"), period.To.Format("2006-01-02 15:04"), kind)
		return "", nil
	}
	if len(entries) >= constants.MaxSearchLimit {
		logger.Warn("More than %d notes between %s and %s, %s summary covers only the newest %d",
			constants.MaxSearchLimit, period.From.Format("2006-01-02 15:04"), period.To.Format("2006-01-02 15:04"),
			kind, len(entries))
	}

	path, err := s.summarizer.Summarize(ctx, period, entries)
	if err != nil {
		return "", err
	}
	logger.Info("Wrote %s summary of %d notes to %s", kind, len(entries), path)
	return path, nil
}
