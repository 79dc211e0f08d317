package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/streed/snap-notes/internal/constants"
	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/migrations"
)

// Mode selects how the database file is journaled.
type Mode int

const (
	// Live is the serving index: WAL journaling so one writer and many
	// readers do not block each other.
	Live Mode = iota
	// Bulk is used while building a fresh index file that nobody reads yet.
	Bulk
)

type DB struct {
	conn *sql.DB
	path string
}

func dsn(path string, mode Mode) string {
	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	switch mode {
	case Bulk:
		q.Set("_journal_mode", "DELETE")
		q.Set("_synchronous", "OFF")
	default:
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if needed) the index database at path and brings its
// schema up to date.
func Open(path string, mode Mode) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.DataDirMode); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	logger.Debug("Opening index database: %s", path)

	conn, err := sql.Open("sqlite3", dsn(path, mode))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if _, err := migrations.NewMigrationRunner(conn).RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", MapError(err))
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Path() string {
	return db.path
}

// CheckIntegrity runs sqlite's quick_check.
func (db *DB) CheckIntegrity() error {
	var result string
	if err := db.conn.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return MapError(err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", interrors.ErrIndexCorruption, result)
	}
	return nil
}

// MapError converts sqlite corruption codes into ErrIndexCorruption and
// leaves other errors untouched.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return fmt.Errorf("%w: %v", interrors.ErrIndexCorruption, err)
		}
	}
	return err
}

// RemoveFiles deletes a database file and its WAL side files.
func RemoveFiles(path string) error {
	var firstErr error
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
