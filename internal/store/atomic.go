package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/streed/snap-notes/internal/constants"
)

// TempFilePrefix marks in-progress writes. Walk ignores these and Sweep
// removes leftovers from a crash.
const TempFilePrefix = ".snap-tmp-"

// stageFile writes data to a synced temp file next to target and returns its
// name. The caller moves it into place or removes it.
func stageFile(target string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(target)

	pattern := TempFilePrefix + filepath.Base(target) + "-*"
	tmpFile, err := os.CreateTemp(dir, pattern)
	if errors.Is(err, fs.ErrNotExist) {
		// A failed write in the same bucket may have pruned dir meanwhile.
		if mkErr := os.MkdirAll(dir, constants.DataDirMode); mkErr == nil {
			tmpFile, err = os.CreateTemp(dir, pattern)
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to chmod temp file: %w", err)
	}
	return name, nil
}

// writeFileAtomic writes data to filename via a temp file and rename,
// replacing any previous content.
func (s *Store) writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := stageFile(filename, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, TempFilePrefix)
}

// syncDir flushes a directory entry so renames survive a crash. Not every
// platform supports fsync on directories, so errors are ignored.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
}
