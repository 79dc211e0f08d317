package search

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/streed/snap-notes/internal/database"
	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
)

const (
	metaLastRebuild = "last_rebuild"
	metaSkipped     = "last_rebuild_skipped"

	rebuildBatchSize = 200
	buildingSuffix   = ".building"
)

// RebuildResult reports what a rebuild processed.
type RebuildResult struct {
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Rebuild discards the index and recreates it from the note store. The new
// index is built in a separate file and swapped in when complete, so
// concurrent searches see either the old or the new contents. Malformed note
// files are logged and skipped.
func (ix *Index) Rebuild(ctx context.Context) (RebuildResult, error) {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	start := time.Now()
	tmpPath := ix.path + buildingSuffix
	if err := database.RemoveFiles(tmpPath); err != nil {
		return RebuildResult{}, fmt.Errorf("failed to clear stale build file: %w", err)
	}

	res, err := ix.build(ctx, tmpPath)
	if err != nil {
		database.RemoveFiles(tmpPath)
		return res, err
	}

	if err := ix.swap(tmpPath); err != nil {
		return res, err
	}
	res.Duration = time.Since(start)
	logger.Info("Rebuilt search index: %d indexed, %d skipped in %v", res.Indexed, res.Skipped, res.Duration)
	return res, nil
}

func (ix *Index) build(ctx context.Context, tmpPath string) (RebuildResult, error) {
	var res RebuildResult

	db, err := database.Open(tmpPath, database.Bulk)
	if err != nil {
		return res, fmt.Errorf("failed to create index build file: %w", err)
	}
	defer db.Close()
	conn := db.Conn()

	var batch []models.IndexEntry
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin rebuild batch: %w", err)
		}
		for _, entry := range batch {
			if err := writeEntry(ctx, tx, entry); err != nil {
				tx.Rollback()
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit rebuild batch: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	err = ix.store.Walk(func(path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		note, err := ix.store.ReadNote(path)
		if err != nil {
			res.Skipped++
			logger.Warn("Skipping note during rebuild: %v", err)
			return nil
		}
		batch = append(batch, models.EntryFromNote(note))
		res.Indexed++
		if len(batch) >= rebuildBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("rebuild aborted: %w", err)
	}
	if err := flush(); err != nil {
		return res, err
	}

	_, err = conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO index_meta (key, value) VALUES (?, ?), (?, ?)",
		metaLastRebuild, time.Now().UTC().Format(time.RFC3339),
		metaSkipped, fmt.Sprint(res.Skipped),
	)
	if err != nil {
		return res, fmt.Errorf("failed to record rebuild metadata: %w", err)
	}
	return res, nil
}

// swap replaces the live index file with the finished build. Only this step
// excludes readers. Closing the last connection lets sqlite checkpoint and
// drop the WAL; if it is still holding frames afterwards another process has
// the index open, and the swap is abandoned rather than pull the file out
// from under it.
func (ix *Index) swap(tmpPath string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.db != nil {
		if err := ix.db.Close(); err != nil {
			logger.Warn("Closing old index: %v", err)
		}
		ix.db = nil
		if pendingWAL(ix.path) {
			database.RemoveFiles(tmpPath)
			db, err := database.Open(ix.path, database.Live)
			if err != nil {
				ix.openErr = err
			} else {
				ix.db = db
			}
			return fmt.Errorf("%w: rebuilt index not installed", interrors.ErrIndexBusy)
		}
	} else {
		// The old file never opened, so its side files are not ours to
		// replay. Leaving them would graft stale pages onto the new file.
		for _, side := range []string{"-wal", "-shm"} {
			os.Remove(ix.path + side)
		}
	}

	if err := os.Rename(tmpPath, ix.path); err != nil {
		ix.openErr = fmt.Errorf("failed to install rebuilt index: %w", err)
		return ix.openErr
	}

	db, err := database.Open(ix.path, database.Live)
	if err != nil {
		ix.openErr = err
		return fmt.Errorf("failed to reopen rebuilt index: %w", err)
	}
	ix.db = db
	ix.openErr = nil
	return nil
}

// pendingWAL reports whether the WAL next to path still holds frames.
func pendingWAL(path string) bool {
	info, err := os.Stat(path + "-wal")
	return err == nil && info.Size() > 0
}
