package summarize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/store"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ ...[]byte) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeGenerator) Name() string { return "fake" }

func testEntries() []models.IndexEntry {
	created := time.Date(2025, 8, 4, 14, 25, 12, 0, time.UTC)
	return []models.IndexEntry{
		{ID: "20250804_142512", Title: "Quarterly Review", Created: created, Tags: []string{"excel", "finance"}, Text: "Q3 revenue table"},
		{ID: "20250804_150000", Title: "Standup notes", Created: created.Add(35 * time.Minute), Text: strings.Repeat("x", 2000)},
	}
}

func TestSummarizeDaily(t *testing.T) {
	root := t.TempDir()
	gen := &fakeGenerator{reply: "  Mostly spreadsheet work.  "}
	s := NewSummarizer(gen, store.New(root))
	s.now = func() time.Time { return time.Date(2025, 8, 4, 18, 0, 5, 0, time.UTC) }

	at := time.Date(2025, 8, 4, 18, 0, 0, 0, time.UTC)
	path, err := s.Summarize(context.Background(), models.LookbackPeriod(models.PeriodDaily, at, 1), testEntries())
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	want := filepath.Join(root, "daily_summaries", "daily_summary_2025-08-04.md")
	if path != want {
		t.Errorf("Expected path %s, got %s", want, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read summary: %v", err)
	}
	doc := string(data)
	for _, part := range []string{
		"# Daily Summary 2025-08-04",
		"Generated: 2025-08-04T18:00:05Z",
		"Mostly spreadsheet work.\n",
		"## Source Notes (2)",
		"- 20250804_142512: Quarterly Review",
		"- 20250804_150000: Standup notes",
	} {
		if !strings.Contains(doc, part) {
			t.Errorf("Summary missing %q:\n%s", part, doc)
		}
	}

	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "Tags: excel, finance") {
		t.Errorf("Prompt should list tags: %s", prompt)
	}
	if strings.Contains(prompt, strings.Repeat("x", 1001)) {
		t.Error("Long note content should be truncated in the prompt")
	}
}

func TestSummarizeWeeklyPath(t *testing.T) {
	root := t.TempDir()
	s := NewSummarizer(&fakeGenerator{reply: "week"}, store.New(root))

	at := time.Date(2025, 8, 10, 19, 0, 0, 0, time.UTC)
	path, err := s.Summarize(context.Background(), models.LookbackPeriod(models.PeriodWeekly, at, 7), testEntries())
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if filepath.Base(path) != "weekly_summary_2025-W32.md" {
		t.Errorf("Unexpected weekly file %s", path)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "# Weekly Summary 2025-W32") {
		t.Errorf("Unexpected header: %s", data)
	}
}

func TestSummarizeGeneratorError(t *testing.T) {
	root := t.TempDir()
	s := NewSummarizer(&fakeGenerator{err: errors.New("connection refused")}, store.New(root))

	_, err := s.Summarize(context.Background(), models.LookbackPeriod(models.PeriodDaily, time.Now(), 1), testEntries())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Expected generator error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "daily_summaries")); !os.IsNotExist(err) {
		t.Error("No summary directory should be created on failure")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	gen := &fakeGenerator{}
	s := NewSummarizer(gen, store.New(t.TempDir()))
	if _, err := s.Summarize(context.Background(), models.Period{Kind: models.PeriodDaily}, nil); err == nil {
		t.Error("Expected error for empty entry list")
	}
	if len(gen.prompts) != 0 {
		t.Error("Generator should not be called without notes")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"héllo", 2, "hé..."},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
