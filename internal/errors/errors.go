package errors

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application
var (
	// Extraction errors
	ErrAdapterUnavailable = errors.New("extraction adapter unavailable")
	ErrAdapterTimeout     = errors.New("extraction adapter timed out")
	ErrLowConfidence      = errors.New("extraction produced no usable text")

	// Post-processing errors
	ErrPeerFailure = errors.New("post-processing peer failed")
	ErrPeerTimeout = errors.New("post-processing peer timed out")
	ErrUnknownPeer = errors.New("unknown post-processing peer")

	// Storage errors
	ErrPersistence   = errors.New("failed to persist note")
	ErrNoteNotFound  = errors.New("note not found")
	ErrNoteExists    = errors.New("a note with this id already exists")
	ErrInvalidNoteID = errors.New("invalid note id")
	ErrMalformedNote = errors.New("malformed note file")

	// Index errors
	ErrIndexCorruption = errors.New("search index is corrupted, run 'snap-notes reindex' to rebuild it")
	ErrIndexBusy       = errors.New("search index is open in another process")

	// Pipeline errors
	ErrCancelled = errors.New("pipeline cancelled before persisting")

	// Validation errors
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidBoolean   = errors.New("invalid boolean value (use true/false)")
	ErrUnknownConfigKey = errors.New("unknown configuration key")
	ErrEmptyCapture     = errors.New("capture has no image data")
)

// PersistenceError reports a failed Persisting step for one note. Nothing from
// the failed write is left visible in the artifact store.
type PersistenceError struct {
	NoteID string
	Path   string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist note %s at %s: %v", e.NoteID, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
