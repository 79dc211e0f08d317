// Package search is the persistent full-text and tag index over the note
// store. The store is the source of truth; the index can always be rebuilt
// from it.
package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/streed/snap-notes/internal/config"
	"github.com/streed/snap-notes/internal/constants"
	"github.com/streed/snap-notes/internal/database"
	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/store"
)

// Query is one search request. Zero From/To leave that side of the date
// range open; both bounds are inclusive.
type Query struct {
	Text  string    `json:"query"`
	Tags  []string  `json:"tags,omitempty"`
	From  time.Time `json:"from,omitempty"`
	To    time.Time `json:"to,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// Stats summarizes the index contents.
type Stats struct {
	EntryCount   int            `json:"entry_count"`
	Oldest       *time.Time     `json:"oldest,omitempty"`
	Newest       *time.Time     `json:"newest,omitempty"`
	TagHistogram map[string]int `json:"tag_histogram"`
	LastRebuild  string         `json:"last_rebuild,omitempty"`
	Path         string         `json:"path"`
}

// TagCount is one row of the tag histogram.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Index serves searches from a sqlite file. mu guards the handle itself:
// queries hold the read side, and only the swap at the end of a rebuild takes
// the write side. writeMu serializes ingest and rebuild.
type Index struct {
	path  string
	store *store.Store
	cfg   *config.Config

	mu      sync.RWMutex
	db      *database.DB
	openErr error

	writeMu sync.Mutex
}

// Open opens the index at path. A corrupted file does not fail Open: queries
// report ErrIndexCorruption until Rebuild replaces it.
func Open(cfg *config.Config, st *store.Store) (*Index, error) {
	ix := &Index{path: cfg.GetIndexPath(), store: st, cfg: cfg}
	db, err := database.Open(ix.path, database.Live)
	if err != nil {
		if !errors.Is(err, interrors.ErrIndexCorruption) {
			return nil, err
		}
		logger.Warn("Search index at %s is unreadable: %v", ix.path, err)
		ix.openErr = err
		return ix, nil
	}
	ix.db = db
	return ix, nil
}

func (ix *Index) Path() string { return ix.path }

// Close releases the database handle.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	return err
}

// withDB runs fn against the live handle under the read lock.
func (ix *Index) withDB(fn func(conn *sql.DB) error) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.db == nil {
		if ix.openErr != nil {
			return ix.openErr
		}
		return errors.New("search index is closed")
	}
	return database.MapError(fn(ix.db.Conn()))
}

// Ingest upserts the entry for note. Re-ingesting the same id replaces the
// previous entry.
func (ix *Index) Ingest(ctx context.Context, note *models.Note) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	entry := models.EntryFromNote(note)
	return ix.withDB(func(conn *sql.DB) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin ingest: %w", err)
		}
		if err := writeEntry(ctx, tx, entry); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit ingest of %s: %w", entry.ID, err)
		}
		logger.Debug("Indexed %s (%d tags)", entry.ID, len(entry.Tags))
		return nil
	})
}

// writeEntry replaces every row belonging to entry.ID inside tx.
func writeEntry(ctx context.Context, tx *sql.Tx, entry models.IndexEntry) error {
	for _, table := range []string{"terms", "entry_tags"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE entry_id = ?", entry.ID); err != nil {
			return fmt.Errorf("failed to clear %s for %s: %w", table, entry.ID, err)
		}
	}

	tf, tokenCount := termFrequencies(entry.Text)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entries (id, title, path, image, created, text, token_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			image = excluded.image,
			created = excluded.created,
			text = excluded.text,
			token_count = excluded.token_count`,
		entry.ID, entry.Title, entry.Path, entry.Image, entry.Created.Unix(), entry.Text, tokenCount,
	)
	if err != nil {
		return fmt.Errorf("failed to write entry %s: %w", entry.ID, err)
	}

	for _, tag := range entry.Tags {
		if _, err := tx.ExecContext(ctx, "INSERT INTO entry_tags (entry_id, tag) VALUES (?, ?)", entry.ID, tag); err != nil {
			return fmt.Errorf("failed to write tag %q for %s: %w", tag, entry.ID, err)
		}
	}

	if len(tf) > 0 {
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO terms (entry_id, term, tf) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare term insert: %w", err)
		}
		defer stmt.Close()
		for term, freq := range tf {
			if _, err := stmt.ExecContext(ctx, entry.ID, term, freq); err != nil {
				return fmt.Errorf("failed to write term for %s: %w", entry.ID, err)
			}
		}
	}
	return nil
}

// Search returns entries matching q, best first. With query text, entries
// must contain at least one query term and are ranked by TF-IDF; ties and the
// empty query order by newest first, then id.
func (ix *Index) Search(ctx context.Context, q Query) ([]models.IndexEntry, error) {
	limit := ix.cfg.SearchLimit(q.Limit)
	terms := queryTerms(q.Text)
	tags := models.NormalizeTags(q.Tags)

	var results []models.IndexEntry
	err := ix.withDB(func(conn *sql.DB) error {
		tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return fmt.Errorf("failed to begin search: %w", err)
		}
		defer tx.Rollback()

		where, args := filterClause(q, tags)
		if strings.TrimSpace(q.Text) == "" {
			results, err = recent(ctx, tx, where, args, limit)
		} else {
			results, err = ranked(ctx, tx, terms, where, args, limit)
		}
		if err != nil {
			return err
		}
		return attachTags(ctx, tx, results)
	})
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Snippet = Snippet(results[i].Text, terms)
	}
	return results, nil
}

// filterClause builds the date and tag conditions on entries e.
func filterClause(q Query, tags []string) (string, []any) {
	var conds []string
	var args []any
	if !q.From.IsZero() {
		conds = append(conds, "e.created >= ?")
		args = append(args, q.From.Unix())
	}
	if !q.To.IsZero() {
		conds = append(conds, "e.created <= ?")
		args = append(args, q.To.Unix())
	}
	if len(tags) > 0 {
		conds = append(conds, fmt.Sprintf(`e.id IN (
			SELECT entry_id FROM entry_tags WHERE tag IN (%s)
			GROUP BY entry_id HAVING COUNT(DISTINCT tag) = ?)`, placeholders(len(tags))))
		for _, t := range tags {
			args = append(args, t)
		}
		args = append(args, len(tags))
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

const entryColumns = "e.id, e.title, e.path, e.image, e.created, e.text"

func scanEntry(rows *sql.Rows) (models.IndexEntry, error) {
	var e models.IndexEntry
	var created int64
	if err := rows.Scan(&e.ID, &e.Title, &e.Path, &e.Image, &created, &e.Text); err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.Created = time.Unix(created, 0).UTC()
	return e, nil
}

func recent(ctx context.Context, tx *sql.Tx, where string, args []any, limit int) ([]models.IndexEntry, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries e WHERE "+where+" ORDER BY e.created DESC, e.id ASC LIMIT ?",
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var out []models.IndexEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scored struct {
	id      string
	created int64
	score   float64
}

func ranked(ctx context.Context, tx *sql.Tx, terms []string, where string, args []any, limit int) ([]models.IndexEntry, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}

	termArgs := make([]any, len(terms))
	for i, t := range terms {
		termArgs[i] = t
	}

	df := make(map[string]int, len(terms))
	rows, err := tx.QueryContext(ctx,
		"SELECT term, COUNT(*) FROM terms WHERE term IN ("+placeholders(len(terms))+") GROUP BY term",
		termArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read document frequencies: %w", err)
	}
	for rows.Next() {
		var term string
		var n int
		if err := rows.Scan(&term, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan document frequency: %w", err)
		}
		df[term] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	postingArgs := append(append([]any{}, termArgs...), args...)
	rows, err = tx.QueryContext(ctx, `
		SELECT t.entry_id, t.term, t.tf, e.created
		FROM terms t JOIN entries e ON e.id = t.entry_id
		WHERE t.term IN (`+placeholders(len(terms))+`) AND `+where,
		postingArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read postings: %w", err)
	}
	byID := make(map[string]*scored)
	for rows.Next() {
		var id, term string
		var tf float64
		var created int64
		if err := rows.Scan(&id, &term, &tf, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		s, ok := byID[id]
		if !ok {
			s = &scored{id: id, created: created}
			byID[id] = s
		}
		s.score += tf * idf(total, df[term])
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits := make([]*scored, 0, len(byID))
	for _, s := range byID {
		hits = append(hits, s)
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.created != b.created {
			return a.created > b.created
		}
		return a.id < b.id
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]any, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	rows, err = tx.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries e WHERE e.id IN ("+placeholders(len(ids))+")", ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	defer rows.Close()
	loaded := make(map[string]models.IndexEntry, len(hits))
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		loaded[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.IndexEntry, 0, len(hits))
	for _, h := range hits {
		e := loaded[h.id]
		e.Score = h.score
		out = append(out, e)
	}
	return out, nil
}

func attachTags(ctx context.Context, tx *sql.Tx, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]any, len(entries))
	pos := make(map[string]int, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		pos[e.ID] = i
		entries[i].Tags = []string{}
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT entry_id, tag FROM entry_tags WHERE entry_id IN ("+placeholders(len(ids))+") ORDER BY tag", ids...)
	if err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("failed to scan tag: %w", err)
		}
		i := pos[id]
		entries[i].Tags = append(entries[i].Tags, tag)
	}
	return rows.Err()
}

// Recent returns the newest entries, optionally filtered by tags.
func (ix *Index) Recent(ctx context.Context, limit int, tags []string) ([]models.IndexEntry, error) {
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	return ix.Search(ctx, Query{Tags: tags, Limit: limit})
}

// Tags returns the tag histogram, most used first.
func (ix *Index) Tags(ctx context.Context) ([]TagCount, error) {
	var out []TagCount
	err := ix.withDB(func(conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx, "SELECT tag, COUNT(*) AS n FROM entry_tags GROUP BY tag ORDER BY n DESC, tag ASC")
		if err != nil {
			return fmt.Errorf("failed to read tags: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var tc TagCount
			if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
				return fmt.Errorf("failed to scan tag: %w", err)
			}
			out = append(out, tc)
		}
		return rows.Err()
	})
	return out, err
}

// Stats reports entry count, date span and tag histogram.
func (ix *Index) Stats(ctx context.Context) (Stats, error) {
	st := Stats{TagHistogram: map[string]int{}, Path: ix.path}
	err := ix.withDB(func(conn *sql.DB) error {
		tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return fmt.Errorf("failed to begin stats: %w", err)
		}
		defer tx.Rollback()

		var oldest, newest sql.NullInt64
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*), MIN(created), MAX(created) FROM entries").
			Scan(&st.EntryCount, &oldest, &newest); err != nil {
			return fmt.Errorf("failed to read entry stats: %w", err)
		}
		if oldest.Valid {
			t := time.Unix(oldest.Int64, 0).UTC()
			st.Oldest = &t
		}
		if newest.Valid {
			t := time.Unix(newest.Int64, 0).UTC()
			st.Newest = &t
		}

		rows, err := tx.QueryContext(ctx, "SELECT tag, COUNT(*) FROM entry_tags GROUP BY tag")
		if err != nil {
			return fmt.Errorf("failed to read tag histogram: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var tag string
			var n int
			if err := rows.Scan(&tag, &n); err != nil {
				return fmt.Errorf("failed to scan tag histogram: %w", err)
			}
			st.TagHistogram[tag] = n
		}
		if err := rows.Err(); err != nil {
			return err
		}

		var built sql.NullString
		err = tx.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", metaLastRebuild).Scan(&built)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read index metadata: %w", err)
		}
		st.LastRebuild = built.String
		return nil
	})
	return st, err
}
