package migrations

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/streed/snap-notes/internal/logger"
)

// Migration is one schema step for the search index database.
type Migration struct {
	ID          string                 // Unique identifier (e.g., "000_create_entries")
	Description string                 // Human-readable description
	Up          func(tx *sql.Tx) error // Migration function
}

// MigrationRunner applies pending migrations in ID order, each in its own
// transaction.
type MigrationRunner struct {
	db         *sql.DB
	migrations []Migration
}

func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	migrations := getAllMigrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].ID < migrations[j].ID
	})
	return &MigrationRunner{db: db, migrations: migrations}
}

func (mr *MigrationRunner) createMigrationsTable() error {
	_, err := mr.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (mr *MigrationRunner) getAppliedMigrations() (map[string]bool, error) {
	rows, err := mr.db.Query("SELECT id FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan migration id: %w", err)
		}
		applied[id] = true
	}
	return applied, rows.Err()
}

// RunMigrations applies every migration not yet recorded and returns how
// many ran.
func (mr *MigrationRunner) RunMigrations() (int, error) {
	if err := mr.createMigrationsTable(); err != nil {
		return 0, err
	}

	applied, err := mr.getAppliedMigrations()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, migration := range mr.migrations {
		if applied[migration.ID] {
			continue
		}

		logger.Debug("Running migration: %s - %s", migration.ID, migration.Description)

		tx, err := mr.db.Begin()
		if err != nil {
			return count, fmt.Errorf("failed to start transaction for migration %s: %w", migration.ID, err)
		}

		if err := migration.Up(tx); err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				logger.Error("Failed to rollback transaction: %v", rollbackErr)
			}
			return count, fmt.Errorf("migration %s failed: %w", migration.ID, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (id, description, applied_at) VALUES (?, ?, ?)",
			migration.ID, migration.Description, time.Now().UTC().Unix(),
		)
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				logger.Error("Failed to rollback transaction: %v", rollbackErr)
			}
			return count, fmt.Errorf("failed to record migration %s: %w", migration.ID, err)
		}

		if err := tx.Commit(); err != nil {
			return count, fmt.Errorf("failed to commit migration %s: %w", migration.ID, err)
		}
		count++
	}

	if count > 0 {
		logger.Debug("Applied %d index migrations", count)
	}
	return count, nil
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Applied     bool   `json:"applied"`
}

func (mr *MigrationRunner) GetMigrationStatus() ([]MigrationStatus, error) {
	applied, err := mr.getAppliedMigrations()
	if err != nil {
		return nil, err
	}

	var status []MigrationStatus
	for _, migration := range mr.migrations {
		status = append(status, MigrationStatus{
			ID:          migration.ID,
			Description: migration.Description,
			Applied:     applied[migration.ID],
		})
	}
	return status, nil
}
