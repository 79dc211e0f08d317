package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/streed/snap-notes/internal/constants"
	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
)

// Store is the on-disk artifact tree: {root}/YYYY/MM/DD/{basename}.png and
// {basename}.md, plus summary folders at the root.
type Store struct {
	root  string
	place func(tmp, target string) error
}

func New(root string) *Store {
	return &Store{root: root, place: placeNew}
}

func (s *Store) Root() string { return s.root }

// Basename returns the capture-time file stem, with a _N suffix for n > 0.
func Basename(t time.Time, n int) string {
	base := t.UTC().Format(constants.BasenameLayout)
	if n > 0 {
		return fmt.Sprintf("%s_%d", base, n)
	}
	return base
}

// DayDir returns the date bucket for t.
func (s *Store) DayDir(t time.Time) string {
	t = t.UTC()
	return filepath.Join(s.root, t.Format("2006"), t.Format("01"), t.Format("02"))
}

// dayDirForID recovers the date bucket from a note id. Only capture stems
// are accepted, so an id can never name a path outside the tree.
func (s *Store) dayDirForID(id string) (string, error) {
	if !isCaptureStem(id) {
		return "", fmt.Errorf("%w: %q", interrors.ErrInvalidNoteID, id)
	}
	day, err := time.Parse("20060102", id[:8])
	if err != nil {
		return "", fmt.Errorf("%w: %q", interrors.ErrInvalidNoteID, id)
	}
	return s.DayDir(day), nil
}

// NotePath returns where the note with the given id lives.
func (s *Store) NotePath(id string) (string, error) {
	dir, err := s.dayDirForID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, id+constants.NoteExt), nil
}

// Exists reports whether either half of the pair for id is on disk.
func (s *Store) Exists(id string) bool {
	dir, err := s.dayDirForID(id)
	if err != nil {
		return false
	}
	for _, ext := range []string{constants.NoteExt, constants.ImageExt} {
		if _, err := os.Stat(filepath.Join(dir, id+ext)); err == nil {
			return true
		}
	}
	return false
}

// WritePair persists the image and the note for note.ID. Both halves are
// staged to temp files, then linked into place without replacing anything:
// the image first, the note as the final step. If either name is already
// taken the write fails with ErrNoteExists and the existing files are left
// untouched. On any failure nothing from this call stays visible.
func (s *Store) WritePair(note *models.Note, image []byte) (string, error) {
	dir, err := s.dayDirForID(note.ID)
	if err != nil {
		return "", &interrors.PersistenceError{NoteID: note.ID, Err: err}
	}
	imagePath := filepath.Join(dir, note.ID+constants.ImageExt)
	notePath := filepath.Join(dir, note.ID+constants.NoteExt)

	created, err := s.makeDayDir(dir)
	cleanup := func() {}
	if created != "" {
		cleanup = func() { s.removeCreated(dir, created) }
	}
	fail := func(err error) (string, error) {
		cleanup()
		return "", &interrors.PersistenceError{NoteID: note.ID, Path: notePath, Err: err}
	}
	if err != nil {
		return fail(fmt.Errorf("failed to create date directory: %w", err))
	}

	note.Image = filepath.Base(imagePath)
	data, err := note.Marshal()
	if err != nil {
		return fail(err)
	}

	imageTmp, err := stageFile(imagePath, image, constants.DataFileMode)
	if err != nil {
		return fail(err)
	}
	noteTmp, err := stageFile(notePath, data, constants.DataFileMode)
	if err != nil {
		os.Remove(imageTmp)
		return fail(err)
	}

	if err := s.place(imageTmp, imagePath); err != nil {
		os.Remove(imageTmp)
		os.Remove(noteTmp)
		return fail(placeError("image", note.ID, err))
	}
	if err := s.place(noteTmp, notePath); err != nil {
		os.Remove(noteTmp)
		os.Remove(imagePath)
		return fail(placeError("note", note.ID, err))
	}
	syncDir(dir)

	note.Path = notePath
	return notePath, nil
}

func placeError(what, id string, err error) error {
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", interrors.ErrNoteExists, id)
	}
	return fmt.Errorf("failed to place %s: %w", what, err)
}

// placeNew moves a staged temp file to target, failing with fs.ErrExist
// instead of replacing a file that is already there. Once linked the write
// has happened; a temp name that fails to unlink is left for Sweep.
func placeNew(tmp, target string) error {
	if err := os.Link(tmp, target); err != nil {
		return err
	}
	if err := os.Remove(tmp); err != nil {
		logger.Warn("Failed to remove staged file %s: %v", tmp, err)
	}
	return nil
}

// makeDayDir creates dir and returns the topmost directory it had to create,
// or "" when dir already existed.
func (s *Store) makeDayDir(dir string) (string, error) {
	var created string
	root := filepath.Clean(s.root)
	for d := dir; d != root && strings.HasPrefix(d, root); d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		created = d
	}
	return created, os.MkdirAll(dir, constants.DataDirMode)
}

// removeCreated prunes the empty directories between dir and top that a
// failed write created. A directory another write has put files in stays.
func (s *Store) removeCreated(dir, top string) {
	for d := dir; strings.HasPrefix(d, top); d = filepath.Dir(d) {
		if os.Remove(d) != nil || d == top {
			return
		}
	}
}

// ReadNote parses the note file at path.
func (s *Store) ReadNote(path string) (*models.Note, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", interrors.ErrNoteNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read note: %w", err)
	}
	note, err := models.ParseNote(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	note.Path = path
	return note, nil
}

// Get loads a note by id.
func (s *Store) Get(id string) (*models.Note, error) {
	path, err := s.NotePath(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interrors.ErrNoteNotFound, err)
	}
	return s.ReadNote(path)
}

// ImagePath resolves a note's image reference to an absolute path.
func (s *Store) ImagePath(note *models.Note) string {
	if note.Image == "" {
		return ""
	}
	if filepath.IsAbs(note.Image) {
		return note.Image
	}
	return filepath.Join(filepath.Dir(note.Path), note.Image)
}

// WalkFunc receives each note file path in the tree.
type WalkFunc func(path string) error

// Walk visits every note file under root, skipping summary trees, summary
// files, hidden entries and in-progress temp files. A missing root is empty.
func (s *Store) Walk(fn WalkFunc) error {
	if _, err := os.Stat(s.root); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			logger.Warn("Skipping unreadable path %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path == s.root {
				return nil
			}
			if strings.HasPrefix(name, ".") || name == constants.DailySummaryDir || name == constants.WeeklySummaryDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || filepath.Ext(name) != constants.NoteExt {
			return nil
		}
		if strings.HasPrefix(name, ".") || isTempFile(name) || IsSummaryFile(name) {
			return nil
		}
		return fn(path)
	})
}

// IsSummaryFile reports whether name is a generated daily or weekly summary.
func IsSummaryFile(name string) bool {
	return strings.HasPrefix(name, constants.DailySummaryPrefix) ||
		strings.HasPrefix(name, constants.WeeklySummaryPrefix)
}

// SweepResult counts what Sweep found.
type SweepResult struct {
	TempFiles      int `json:"temp_files"`
	OrphanedImages int `json:"orphaned_images"`
}

// Sweep removes temp files left by an interrupted write and images whose
// note never became visible. Files modified within minAge are left alone so
// a write that is still in progress is not disturbed.
func (s *Store) Sweep(minAge time.Duration) (SweepResult, error) {
	cutoff := time.Now().Add(-minAge)
	var res SweepResult
	if _, err := os.Stat(s.root); errors.Is(err, fs.ErrNotExist) {
		return res, nil
	}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if minAge > 0 {
			if info, err := d.Info(); err != nil || info.ModTime().After(cutoff) {
				return nil
			}
		}
		switch {
		case isTempFile(name):
			if os.Remove(path) == nil {
				res.TempFiles++
			}
		case filepath.Ext(name) == constants.ImageExt && isCaptureStem(strings.TrimSuffix(name, constants.ImageExt)):
			notePath := strings.TrimSuffix(path, constants.ImageExt) + constants.NoteExt
			if _, statErr := os.Stat(notePath); errors.Is(statErr, fs.ErrNotExist) {
				if os.Remove(path) == nil {
					res.OrphanedImages++
				}
			}
		}
		return nil
	})
	return res, err
}

// isCaptureStem matches YYYYMMDD_HHMMSS with an optional _N suffix, so Sweep
// never touches images the user dropped into the tree by hand.
func isCaptureStem(stem string) bool {
	if len(stem) < len(constants.BasenameLayout) {
		return false
	}
	if _, err := time.Parse(constants.BasenameLayout, stem[:len(constants.BasenameLayout)]); err != nil {
		return false
	}
	rest := stem[len(constants.BasenameLayout):]
	if rest == "" {
		return true
	}
	if len(rest) < 2 || rest[0] != '_' {
		return false
	}
	for _, r := range rest[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
