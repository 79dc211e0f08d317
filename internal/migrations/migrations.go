package migrations

import (
	"database/sql"
	"fmt"
)

func getAllMigrations() []Migration {
	return []Migration{
		{
			ID:          "000_create_entries",
			Description: "Create index entries, tags and term postings",
			Up:          migration000Up,
		},
		{
			ID:          "001_create_index_meta",
			Description: "Track rebuild bookkeeping in a key/value table",
			Up:          migration001Up,
		},
		// Add new migrations here in chronological order
	}
}

func migration000Up(tx *sql.Tx) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"entries table", `
			CREATE TABLE IF NOT EXISTS entries (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				path TEXT NOT NULL,
				image TEXT NOT NULL DEFAULT '',
				created INTEGER NOT NULL,
				text TEXT NOT NULL,
				token_count INTEGER NOT NULL DEFAULT 0
			)`},
		{"entries created index", `CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created DESC, id)`},
		{"entry_tags table", `
			CREATE TABLE IF NOT EXISTS entry_tags (
				entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
				tag TEXT NOT NULL,
				PRIMARY KEY (entry_id, tag)
			)`},
		{"entry_tags tag index", `CREATE INDEX IF NOT EXISTS idx_entry_tags_tag ON entry_tags(tag)`},
		{"terms table", `
			CREATE TABLE IF NOT EXISTS terms (
				entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
				term TEXT NOT NULL,
				tf REAL NOT NULL,
				PRIMARY KEY (term, entry_id)
			)`},
		{"terms entry index", `CREATE INDEX IF NOT EXISTS idx_terms_entry ON terms(entry_id)`},
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}

func migration001Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS index_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index_meta table: %w", err)
	}
	return nil
}
