package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/snap-notes/internal/config"
	"github.com/streed/snap-notes/internal/database"
	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/store"
)

var base = time.Date(2025, 8, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	cfg   *config.Config
	store *store.Store
	index *Index
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDirectory = filepath.Join(dir, "notes")
	cfg.IndexPath = filepath.Join(dir, "index", "search_index.db")

	st := store.New(cfg.DataDirectory)
	ix, err := Open(cfg, st)
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return &fixture{cfg: cfg, store: st, index: ix}
}

// persist writes a note to the store without indexing it.
func (f *fixture) persist(t *testing.T, id string, created time.Time, body string, tags ...string) *models.Note {
	t.Helper()
	note := &models.Note{ID: id, Title: "Screenshot " + id, Created: created, Tags: tags, Body: body}
	_, err := f.store.WritePair(note, []byte("png"))
	require.NoError(t, err)
	return note
}

// add persists and ingests a note.
func (f *fixture) add(t *testing.T, id string, created time.Time, body string, tags ...string) *models.Note {
	t.Helper()
	note := f.persist(t, id, created, body, tags...)
	require.NoError(t, f.index.Ingest(context.Background(), note))
	return note
}

func ids(entries []models.IndexEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	note := f.add(t, "20250804_090000", base, "first draft about budgets", "work")

	note.Body = "final version about forecasts"
	note.Tags = []string{"finance"}
	require.NoError(t, f.index.Ingest(ctx, note))

	stats, err := f.index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntryCount)
	assert.Equal(t, map[string]int{"finance": 1}, stats.TagHistogram)

	old, err := f.index.Search(ctx, Query{Text: "budgets"})
	require.NoError(t, err)
	assert.Empty(t, old, "stale terms must not survive re-ingest")

	fresh, err := f.index.Search(ctx, Query{Text: "forecasts"})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, []string{"finance"}, fresh[0].Tags)
}

func TestSearchRanking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "20250804_090000", base, "kubernetes kubernetes kubernetes deployment")
	f.add(t, "20250804_100000", base.Add(time.Hour), "one mention of kubernetes among many other words here today")
	f.add(t, "20250804_110000", base.Add(2*time.Hour), "nothing relevant")

	results, err := f.index.Search(ctx, Query{Text: "Kubernetes"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "20250804_090000", results[0].ID, "higher term frequency ranks first")
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Contains(t, results[0].Snippet, "kubernetes")
}

func TestSearchTiesBreakByNewest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "20250804_090000", base, "standup notes")
	f.add(t, "20250804_100000", base.Add(time.Hour), "standup notes")
	f.add(t, "20250804_100000_1", base.Add(time.Hour), "standup notes")

	results, err := f.index.Search(ctx, Query{Text: "standup"})
	require.NoError(t, err)
	assert.Equal(t, []string{"20250804_100000", "20250804_100000_1", "20250804_090000"}, ids(results))
}

func TestSearchEmptyQueryWithTagAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		tags := []string{"personal"}
		if i%4 != 3 {
			tags = []string{"work"}
		}
		id := fmt.Sprintf("20250804_%02d0000", 10+i)
		f.add(t, id, base.Add(time.Duration(i)*time.Hour), "entry", tags...)
	}

	results, err := f.index.Search(ctx, Query{Tags: []string{"work"}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Contains(t, r.Tags, "work")
		if i > 0 {
			assert.False(t, r.Created.After(results[i-1].Created), "results must be newest first")
		}
	}
	assert.Equal(t, "20250804_160000", results[0].ID)
}

func TestSearchTagsAreConjunctive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "20250804_090000", base, "a", "work", "meeting")
	f.add(t, "20250804_100000", base.Add(time.Hour), "b", "work")
	f.add(t, "20250804_110000", base.Add(2*time.Hour), "c", "meeting")

	results, err := f.index.Search(ctx, Query{Tags: []string{"Meeting", "work"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"20250804_090000"}, ids(results))
}

func TestSearchDateRangeInclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "20250803_090000", base.AddDate(0, 0, -1), "report")
	f.add(t, "20250804_090000", base, "report")
	f.add(t, "20250805_090000", base.AddDate(0, 0, 1), "report")

	results, err := f.index.Search(ctx, Query{Text: "report", From: base, To: base.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"20250804_090000", "20250805_090000"}, ids(results))
}

func TestSearchDefaultLimit(t *testing.T) {
	f := newFixture(t)
	f.cfg.SearchDefaultLimit = 3
	for i := 0; i < 5; i++ {
		f.add(t, fmt.Sprintf("20250804_09000%d", i), base.Add(time.Duration(i)*time.Second), "x")
	}
	results, err := f.index.Search(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRebuildIsFixedPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.persist(t, "20250804_090000", base, "quarterly review slides", "work")
	f.persist(t, "20250804_100000", base.Add(time.Hour), "review of the design doc", "work", "design")
	f.persist(t, "20250805_090000", base.AddDate(0, 0, 1), "lunch menu")

	first, err := f.index.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Indexed)
	before, err := f.index.Search(ctx, Query{Text: "review"})
	require.NoError(t, err)

	second, err := f.index.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Indexed, second.Indexed)
	after, err := f.index.Search(ctx, Query{Text: "review"})
	require.NoError(t, err)

	assert.Equal(t, ids(before), ids(after))
	for i := range before {
		assert.InDelta(t, before[i].Score, after[i].Score, 1e-12)
	}
	_, err = os.Stat(f.cfg.GetIndexPath() + buildingSuffix)
	assert.True(t, os.IsNotExist(err), "build file left behind")
}

func TestRebuildSkipsMalformedAndReconcilesDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "20250804_090000", base, "keep me")
	gone := f.add(t, "20250804_100000", base.Add(time.Hour), "delete me")
	require.NoError(t, os.Remove(gone.Path))

	bad := filepath.Join(f.store.DayDir(base), "20250804_110000.md")
	require.NoError(t, os.WriteFile(bad, []byte("no frontmatter here"), 0644))
	require.NoError(t, f.store.WriteSummary(f.store.DailySummaryPath(base), []byte("# summary")))

	res, err := f.index.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 1, res.Skipped)

	results, err := f.index.Search(ctx, Query{Text: "delete"})
	require.NoError(t, err)
	assert.Empty(t, results)

	stats, err := f.index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntryCount)
	assert.NotEmpty(t, stats.LastRebuild)
}

func TestSearchDuringRebuildSeesWholeSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.add(t, fmt.Sprintf("20250804_09000%d", i), base.Add(time.Duration(i)*time.Second), "alpha")
	}
	for i := 0; i < 60; i++ {
		f.persist(t, fmt.Sprintf("20250805_09%02d00", i), base.AddDate(0, 0, 1).Add(time.Duration(i)*time.Minute), "alpha")
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int]bool{}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := f.index.Search(ctx, Query{Text: "alpha", Limit: 1000})
				if err != nil {
					t.Errorf("search during rebuild: %v", err)
					return
				}
				mu.Lock()
				seen[len(results)] = true
				mu.Unlock()
			}
		}()
	}

	res, err := f.index.Rebuild(ctx)
	close(stop)
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, 63, res.Indexed)

	for n := range seen {
		assert.True(t, n == 3 || n == 63, "observed a partial index with %d entries", n)
	}
}

func TestCorruptIndexRecommendsRebuild(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDirectory = filepath.Join(dir, "notes")
	cfg.IndexPath = filepath.Join(dir, "search_index.db")
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(cfg.IndexPath, garbage, 0644))

	st := store.New(cfg.DataDirectory)
	_, err := st.WritePair(&models.Note{ID: "20250804_090000", Title: "t", Created: base, Body: "recovered"}, []byte("png"))
	require.NoError(t, err)

	ix, err := Open(cfg, st)
	require.NoError(t, err, "a corrupt index must not prevent opening")
	defer ix.Close()

	_, err = ix.Search(context.Background(), Query{Text: "recovered"})
	require.True(t, errors.Is(err, interrors.ErrIndexCorruption), "got %v", err)
	assert.Contains(t, err.Error(), "reindex")

	res, err := ix.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)

	results, err := ix.Search(context.Background(), Query{Text: "recovered"})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRebuildCancelled(t *testing.T) {
	f := newFixture(t)
	f.add(t, "20250804_090000", base, "still here")
	f.persist(t, "20250804_100000", base.Add(time.Hour), "not yet indexed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.index.Rebuild(ctx)
	require.Error(t, err)

	results, err := f.index.Search(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"20250804_090000"}, ids(results), "old index must stay live")
}

func TestRebuildLeavesIndexOpenElsewhereAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "20250804_090000", base, "shared budget")

	// Another process with the index open keeps its WAL alive.
	other, err := database.Open(f.cfg.IndexPath, database.Live)
	require.NoError(t, err)
	_, err = other.Conn().Exec("INSERT OR REPLACE INTO index_meta (key, value) VALUES ('writer', 'other')")
	require.NoError(t, err)

	_, err = f.index.Rebuild(ctx)
	require.ErrorIs(t, err, interrors.ErrIndexBusy)
	assert.FileExists(t, f.cfg.IndexPath+"-wal")
	assert.NoFileExists(t, f.cfg.IndexPath+buildingSuffix)

	var writer string
	require.NoError(t, other.Conn().QueryRow("SELECT value FROM index_meta WHERE key = 'writer'").Scan(&writer))
	assert.Equal(t, "other", writer)

	results, err := f.index.Search(ctx, Query{Text: "budget"})
	require.NoError(t, err)
	assert.Equal(t, []string{"20250804_090000"}, ids(results), "old index must stay live")

	require.NoError(t, other.Close())
	res, err := f.index.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
}

func TestStatsAndTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.index.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.EntryCount)
	assert.Nil(t, empty.Oldest)

	f.add(t, "20250803_090000", base.AddDate(0, 0, -1), "a", "work")
	f.add(t, "20250804_090000", base, "b", "work", "meeting")

	stats, err := f.index.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EntryCount)
	assert.True(t, stats.Oldest.Equal(base.AddDate(0, 0, -1)))
	assert.True(t, stats.Newest.Equal(base))
	assert.Equal(t, map[string]int{"work": 2, "meeting": 1}, stats.TagHistogram)

	tags, err := f.index.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{"work", 2}, {"meeting", 1}}, tags)
}
